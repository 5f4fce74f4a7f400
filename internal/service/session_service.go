package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/examflow/examflow-backend/internal/cache"
	"github.com/examflow/examflow-backend/internal/metrics"
	"github.com/examflow/examflow-backend/internal/model"
	"github.com/examflow/examflow-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ClaimResult is the outcome of claiming a token for a new session.
// Session is set only when Reason is TokenValid.
type ClaimResult struct {
	Reason  TokenReason
	Session *model.ExamSession
	Token   *model.AccessToken
	Exam    *model.Assessment
}

// OK reports whether a session was opened.
func (r *ClaimResult) OK() bool {
	return r.Reason == TokenValid && r.Session != nil
}

// FaceVerificationResult is returned by VerifyFace. Reason is set when the
// token itself was rejected.
type FaceVerificationResult struct {
	Verified   bool
	Confidence float64
	Message    string
	Reason     TokenReason
	SessionID  *uuid.UUID
}

// SessionService opens exam sessions from tokens and serves their runtime state.
type SessionService struct {
	tokens     *TokenService
	tokenStore repository.TokenStore
	sessions   repository.SessionStore
	exams      *AssessmentService
	cache      *cache.SessionCache
	verifier   FaceVerifier
	threshold  float64
	now        func() time.Time
	log        zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	tokens *TokenService,
	tokenStore repository.TokenStore,
	sessions repository.SessionStore,
	exams *AssessmentService,
	sessionCache *cache.SessionCache,
	verifier FaceVerifier,
	threshold float64,
	log zerolog.Logger,
) *SessionService {
	if verifier == nil {
		verifier = StubVerifier{}
	}
	return &SessionService{
		tokens:     tokens,
		tokenStore: tokenStore,
		sessions:   sessions,
		exams:      exams,
		cache:      sessionCache,
		verifier:   verifier,
		threshold:  threshold,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log.With().Str("component", "session_service").Logger(),
	}
}

// WithClock replaces the time source.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	s.now = now
	return s
}

// Claim consumes one use of the token and opens a session. The validation
// up front only yields a precise reason; the store's conditional update is
// what actually guards usage_count.
func (s *SessionService) Claim(ctx context.Context, raw string, confidence *float64) (*ClaimResult, error) {
	v, err := s.tokens.Validate(ctx, raw)
	if err != nil {
		return nil, err
	}
	if !v.Valid() {
		metrics.SessionClaimsTotal.WithLabelValues(string(v.Reason)).Inc()
		return &ClaimResult{Reason: v.Reason, Token: v.Token}, nil
	}

	now := s.now()
	sess := &model.ExamSession{
		ID:                     uuid.New(),
		StartedAt:              now,
		VerificationConfidence: confidence,
	}
	tok, err := s.tokenStore.Claim(ctx, v.Token.Code, now, sess)
	if errors.Is(err, repository.ErrConflict) {
		// Lost a race or the token changed since validation; re-read it.
		again, verr := s.tokens.Validate(ctx, v.Token.Code)
		if verr != nil {
			return nil, verr
		}
		reason := again.Reason
		if reason == TokenValid {
			reason = TokenUsageExceeded
		}
		metrics.SessionClaimsTotal.WithLabelValues(string(reason)).Inc()
		return &ClaimResult{Reason: reason, Token: again.Token}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim token: %w", err)
	}

	if err := s.cache.SetSessionStart(ctx, sess.ID, sess.StartedAt); err != nil {
		s.log.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("Failed to cache session start")
	}

	metrics.SessionClaimsTotal.WithLabelValues(string(TokenValid)).Inc()
	s.log.Info().
		Str("session_id", sess.ID.String()).
		Str("exam_id", sess.ExamID.String()).
		Int("usage_count", tok.UsageCount).
		Msg("Session started")

	return &ClaimResult{Reason: TokenValid, Session: sess, Token: tok, Exam: v.Exam}, nil
}

// VerifyFace gates session creation behind the face verifier. Every
// rejection is reported in the result rather than as an error.
func (s *SessionService) VerifyFace(ctx context.Context, raw, imageData string, threshold *float64) (*FaceVerificationResult, error) {
	img, err := DecodeImageData(imageData)
	if err != nil {
		return &FaceVerificationResult{Message: "Invalid image data"}, nil
	}

	v, err := s.tokens.Validate(ctx, raw)
	if err != nil {
		return nil, err
	}
	if !v.Valid() {
		return &FaceVerificationResult{Message: v.Reason.Message(), Reason: v.Reason}, nil
	}

	confidence, err := s.verifier.Verify(ctx, img)
	if err != nil {
		if errors.Is(err, ErrInvalidImage) {
			return &FaceVerificationResult{Message: "Invalid image data"}, nil
		}
		return nil, fmt.Errorf("verify face: %w", err)
	}

	required := s.threshold
	if threshold != nil {
		required = *threshold
	}
	if confidence < required {
		return &FaceVerificationResult{
			Confidence: confidence,
			Message:    "Face verification failed: confidence below threshold",
		}, nil
	}

	res, err := s.Claim(ctx, raw, &confidence)
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return &FaceVerificationResult{Confidence: confidence, Message: res.Reason.Message(), Reason: res.Reason}, nil
	}
	return &FaceVerificationResult{
		Verified:   true,
		Confidence: confidence,
		Message:    "Face verification successful",
		SessionID:  &res.Session.ID,
	}, nil
}

// Get returns a session or ErrSessionNotFound.
func (s *SessionService) Get(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	sess, err := s.sessions.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	return sess, err
}

// Active returns the session if it is still in progress.
func (s *SessionService) Active(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != model.SessionStatusInProgress {
		return nil, ErrSessionClosed
	}
	return sess, nil
}

// Paper returns the exam paper of an in-progress session.
func (s *SessionService) Paper(ctx context.Context, id uuid.UUID) (*model.ExamPaper, error) {
	sess, err := s.Active(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.exams.Paper(ctx, sess.ExamID)
}

// SaveDraft autosaves one answer of an in-progress session.
func (s *SessionService) SaveDraft(ctx context.Context, sessionID uuid.UUID, questionID, answer string) error {
	return s.cache.SaveDraft(ctx, sessionID, questionID, answer)
}

// State returns what a reloading client needs to resume: remaining time
// and autosaved answers. The start time is read from Redis and falls back
// to the store, re-caching it on a miss.
func (s *SessionService) State(ctx context.Context, id uuid.UUID) (*model.ExamSessionState, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	state := &model.ExamSessionState{
		SessionID:        sess.ID,
		ExamID:           sess.ExamID,
		Status:           sess.Status,
		AutosavedAnswers: map[string]string{},
	}
	if sess.Status != model.SessionStatusInProgress {
		return state, nil
	}

	paper, err := s.exams.Paper(ctx, sess.ExamID)
	if err != nil {
		return nil, err
	}

	start, ok, err := s.cache.SessionStart(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("read session start: %w", err)
	}
	if !ok {
		start = sess.StartedAt
		if err := s.cache.SetSessionStart(ctx, sess.ID, start); err != nil {
			s.log.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("Failed to re-cache session start")
		}
	}

	drafts, err := s.cache.Drafts(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("read drafts: %w", err)
	}
	state.AutosavedAnswers = drafts

	remaining := start.Add(time.Duration(paper.Duration) * time.Minute).Sub(s.now())
	if remaining < 0 {
		remaining = 0
	}
	state.RemainingTime = remaining.Seconds()
	return state, nil
}
