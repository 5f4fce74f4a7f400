package service

import (
	"context"
	"crypto/rand"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/examflow/examflow-backend/internal/metrics"
	"github.com/examflow/examflow-backend/internal/model"
	"github.com/examflow/examflow-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
)

const (
	codeAlphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxCodeAttempts   = 32
	defaultMaxUsage   = 1
	defaultTokenHours = 24.0
)

// TokenReason classifies the outcome of a token check.
type TokenReason string

const (
	TokenValid         TokenReason = "valid"
	TokenNotFound      TokenReason = "not_found"
	TokenExpired       TokenReason = "expired"
	TokenUsageExceeded TokenReason = "usage_exceeded"
	TokenExamMissing   TokenReason = "exam_missing"
)

// Message returns the human-readable explanation shown to students.
func (r TokenReason) Message() string {
	switch r {
	case TokenValid:
		return "Token is valid"
	case TokenExpired:
		return "Token has expired"
	case TokenUsageExceeded:
		return "Token has already been used"
	case TokenExamMissing:
		return "Exam not found for this token"
	default:
		return "Invalid token"
	}
}

// TokenValidation is the result of a read-only token check. Token is set
// whenever the code resolved; Exam only when Reason is TokenValid.
type TokenValidation struct {
	Reason TokenReason
	Token  *model.AccessToken
	Exam   *model.Assessment
}

// Valid reports whether the token currently authorizes an attempt.
func (v *TokenValidation) Valid() bool {
	return v.Reason == TokenValid
}

// IssueInput holds the parameters of an admin token. Zero values take defaults.
type IssueInput struct {
	ExamID         uuid.UUID
	StudentName    string
	MaxUsage       int
	ExpiresInHours float64
}

// TokenService issues and validates exam access tokens.
type TokenService struct {
	tokens     repository.TokenStore
	exams      repository.AssessmentStore
	defaultTTL time.Duration
	now        func() time.Time
	newCode    func() (string, error)
	log        zerolog.Logger
}

// NewTokenService creates a new TokenService.
func NewTokenService(tokens repository.TokenStore, exams repository.AssessmentStore, defaultTTL time.Duration, log zerolog.Logger) *TokenService {
	if defaultTTL <= 0 {
		defaultTTL = time.Duration(defaultTokenHours * float64(time.Hour))
	}
	return &TokenService{
		tokens:     tokens,
		exams:      exams,
		defaultTTL: defaultTTL,
		now:        func() time.Time { return time.Now().UTC() },
		newCode:    GenerateAdminCode,
		log:        log.With().Str("component", "token_service").Logger(),
	}
}

// WithClock replaces the time source.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// WithCodeGenerator replaces the admin code generator.
func (s *TokenService) WithCodeGenerator(gen func() (string, error)) *TokenService {
	s.newCode = gen
	return s
}

// NormalizeCode uppercases and trims a presented code.
func NormalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// GenerateAdminCode returns a random code of the form AAAA-AAA drawn
// uniformly from [A-Z0-9].
func GenerateAdminCode() (string, error) {
	buf := make([]byte, 0, 8)
	alphabetLen := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < 7; i++ {
		if i == 4 {
			buf = append(buf, '-')
		}
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		buf = append(buf, codeAlphabet[n.Int64()])
	}
	return string(buf), nil
}

// Issue mints a new admin token bound to an existing exam.
func (s *TokenService) Issue(ctx context.Context, in IssueInput) (*model.AccessToken, *model.Assessment, error) {
	exam, err := s.exams.GetByID(ctx, in.ExamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrExamNotFound
		}
		return nil, nil, fmt.Errorf("get exam: %w", err)
	}

	maxUsage := in.MaxUsage
	if maxUsage == 0 {
		maxUsage = defaultMaxUsage
	}
	ttl := s.defaultTTL
	if in.ExpiresInHours != 0 {
		ttl = time.Duration(in.ExpiresInHours * float64(time.Hour))
	}
	if maxUsage < 1 || ttl <= 0 {
		return nil, nil, ErrInvalidTokenInput
	}

	now := s.now()
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, nil, err
		}
		exists, err := s.tokens.CodeExists(ctx, code)
		if err != nil {
			return nil, nil, fmt.Errorf("check code: %w", err)
		}
		if exists {
			continue
		}

		tok := &model.AccessToken{
			ID:          uuid.New(),
			Code:        code,
			ExamID:      exam.ID,
			StudentName: strings.TrimSpace(in.StudentName),
			Kind:        model.TokenKindAdmin,
			IsActive:    true,
			ExpiresAt:   now.Add(ttl),
			UsageCount:  0,
			MaxUsage:    maxUsage,
			CreatedAt:   now,
		}
		err = s.tokens.Create(ctx, tok)
		if errors.Is(err, repository.ErrDuplicate) {
			// Lost a race with another issuer for the same code.
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("create token: %w", err)
		}

		metrics.TokensIssuedTotal.WithLabelValues(string(model.TokenKindAdmin)).Inc()
		s.log.Info().Str("exam_id", exam.ID.String()).Int("max_usage", maxUsage).Msg("Token issued")
		return tok, exam, nil
	}
	return nil, nil, ErrCodeSpaceExhausted
}

// Validate checks a presented code without consuming it.
func (s *TokenService) Validate(ctx context.Context, raw string) (*TokenValidation, error) {
	v, err := s.classify(ctx, NormalizeCode(raw))
	if err != nil {
		return nil, err
	}
	metrics.TokenValidationsTotal.WithLabelValues(string(v.Reason)).Inc()
	return v, nil
}

func (s *TokenService) classify(ctx context.Context, code string) (*TokenValidation, error) {
	if code == "" {
		return &TokenValidation{Reason: TokenNotFound}, nil
	}
	tok, err := s.tokens.GetByCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return &TokenValidation{Reason: TokenNotFound}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}

	v := &TokenValidation{Token: tok}
	switch {
	case !tok.IsActive:
		v.Reason = TokenNotFound
	case tok.Expired(s.now()):
		v.Reason = TokenExpired
	case tok.Exhausted():
		v.Reason = TokenUsageExceeded
	default:
		exam, err := s.exams.GetByID(ctx, tok.ExamID)
		if errors.Is(err, repository.ErrNotFound) {
			v.Reason = TokenExamMissing
			return v, nil
		}
		if err != nil {
			return nil, fmt.Errorf("get exam: %w", err)
		}
		v.Reason = TokenValid
		v.Exam = exam
	}
	return v, nil
}

// Deactivate soft-disables a token.
func (s *TokenService) Deactivate(ctx context.Context, raw string) error {
	code := NormalizeCode(raw)
	if err := s.tokens.Deactivate(ctx, code); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTokenNotFound
		}
		return fmt.Errorf("deactivate token: %w", err)
	}
	s.log.Info().Str("token", code).Msg("Token deactivated")
	return nil
}

// ListByExam returns every token bound to an exam.
func (s *TokenService) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.AccessToken, error) {
	return s.tokens.ListByExam(ctx, examID)
}

//go:embed fixtures/demo.toml
var demoFixture []byte

type demoQuestion struct {
	ID            string   `toml:"id"`
	Type          string   `toml:"type"`
	Question      string   `toml:"question"`
	Options       []string `toml:"options"`
	CorrectAnswer *int     `toml:"correct_answer"`
	Points        float64  `toml:"points"`
	Difficulty    string   `toml:"difficulty"`
	Explanation   string   `toml:"explanation"`
	MaxWords      int      `toml:"max_words"`
}

type demoConfig struct {
	ValidHours float64 `toml:"valid_hours"`
	MaxUsage   int     `toml:"max_usage"`
	Exam       struct {
		ID           string         `toml:"id"`
		Title        string         `toml:"title"`
		Description  string         `toml:"description"`
		Subject      string         `toml:"subject"`
		Duration     int            `toml:"duration"`
		Instructions string         `toml:"instructions"`
		ExamType     string         `toml:"exam_type"`
		Difficulty   string         `toml:"difficulty"`
		Questions    []demoQuestion `toml:"questions"`
	} `toml:"exam"`
	Tokens []struct {
		Code        string `toml:"code"`
		StudentName string `toml:"student_name"`
	} `toml:"tokens"`
}

// DemoSeed is the result of SeedDemo.
type DemoSeed struct {
	Exam   *model.Assessment
	Tokens []model.AccessToken
}

// Codes returns the seeded token codes in fixture order.
func (d *DemoSeed) Codes() []string {
	codes := make([]string, len(d.Tokens))
	for i, t := range d.Tokens {
		codes[i] = t.Code
	}
	return codes
}

// SeedDemo upserts the demo exam and its fixed tokens. Running it again
// refreshes expiry, resets usage and reactivates every demo token.
func (s *TokenService) SeedDemo(ctx context.Context) (*DemoSeed, error) {
	var fx demoConfig
	if err := toml.Unmarshal(demoFixture, &fx); err != nil {
		return nil, fmt.Errorf("decode demo fixture: %w", err)
	}
	examID, err := uuid.Parse(fx.Exam.ID)
	if err != nil {
		return nil, fmt.Errorf("demo exam id: %w", err)
	}

	now := s.now()
	questions := make(model.QuestionList, 0, len(fx.Exam.Questions))
	for _, q := range fx.Exam.Questions {
		questions = append(questions, model.Question{
			ID:            q.ID,
			Type:          model.QuestionType(q.Type),
			Question:      q.Question,
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
			Points:        q.Points,
			Difficulty:    q.Difficulty,
			Explanation:   q.Explanation,
			MaxWords:      q.MaxWords,
		})
	}
	exam := &model.Assessment{
		ID:               examID,
		Title:            fx.Exam.Title,
		Description:      fx.Exam.Description,
		Subject:          fx.Exam.Subject,
		Duration:         fx.Exam.Duration,
		Instructions:     fx.Exam.Instructions,
		ExamType:         fx.Exam.ExamType,
		Difficulty:       fx.Exam.Difficulty,
		ContentSource:    "demo",
		Questions:        questions,
		QuestionSettings: model.DefaultQuestionSettings(),
		Status:           model.AssessmentStatusPublished,
		CreatedAt:        now,
		LastModified:     now,
	}
	if err := s.exams.Upsert(ctx, exam); err != nil {
		return nil, fmt.Errorf("upsert demo exam: %w", err)
	}

	seed := &DemoSeed{Exam: exam}
	expiresAt := now.Add(time.Duration(fx.ValidHours * float64(time.Hour)))
	for _, ft := range fx.Tokens {
		tok := model.AccessToken{
			ID:          uuid.New(),
			Code:        ft.Code,
			ExamID:      examID,
			StudentName: ft.StudentName,
			Kind:        model.TokenKindDemo,
			IsActive:    true,
			ExpiresAt:   expiresAt,
			UsageCount:  0,
			MaxUsage:    fx.MaxUsage,
			CreatedAt:   now,
		}
		if err := s.tokens.Upsert(ctx, &tok); err != nil {
			return nil, fmt.Errorf("upsert demo token %s: %w", ft.Code, err)
		}
		metrics.TokensIssuedTotal.WithLabelValues(string(model.TokenKindDemo)).Inc()
		seed.Tokens = append(seed.Tokens, tok)
	}

	s.log.Info().Strs("codes", seed.Codes()).Msg("Demo fixtures seeded")
	return seed, nil
}
