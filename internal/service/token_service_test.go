package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/examflow/examflow-backend/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	adminCodePattern = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{3}$`)
	demoCodePattern  = regexp.MustCompile(`^[A-Z0-9]{8}$`)
)

func TestGenerateAdminCode_Format(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		code, err := GenerateAdminCode()
		require.NoError(t, err)
		assert.Regexp(t, adminCodePattern, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 190)
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "DEMO1234", NormalizeCode("  demo1234\n"))
	assert.Equal(t, "", NormalizeCode("   "))
}

func TestTokenService_IssueDefaults(t *testing.T) {
	env := newTestEnv(t, nil)
	exam := env.seedExam(t)

	tok, gotExam, err := env.tokens.Issue(context.Background(), IssueInput{ExamID: exam.ID, StudentName: " Ada "})
	require.NoError(t, err)

	assert.Regexp(t, adminCodePattern, tok.Code)
	assert.Equal(t, exam.ID, gotExam.ID)
	assert.Equal(t, "Ada", tok.StudentName)
	assert.Equal(t, model.TokenKindAdmin, tok.Kind)
	assert.True(t, tok.IsActive)
	assert.Equal(t, 0, tok.UsageCount)
	assert.Equal(t, 1, tok.MaxUsage)
	assert.Equal(t, env.clock.Now().Add(24*time.Hour), tok.ExpiresAt)

	exists, err := env.stores.Tokens.CodeExists(context.Background(), tok.Code)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestTokenService_IssueFractionalHours(t *testing.T) {
	env := newTestEnv(t, nil)
	exam := env.seedExam(t)

	tok, _, err := env.tokens.Issue(context.Background(), IssueInput{ExamID: exam.ID, MaxUsage: 3, ExpiresInHours: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 3, tok.MaxUsage)
	assert.Equal(t, env.clock.Now().Add(30*time.Minute), tok.ExpiresAt)
}

func TestTokenService_IssueUnknownExamCreatesNothing(t *testing.T) {
	env := newTestEnv(t, nil)

	tok, _, err := env.tokens.Issue(context.Background(), IssueInput{ExamID: uuid.New()})
	assert.Nil(t, tok)
	require.ErrorIs(t, err, ErrExamNotFound)
	assert.Contains(t, err.Error(), "not found")
	assert.Empty(t, env.db.tokens)
}

func TestTokenService_IssueRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, nil)
	exam := env.seedExam(t)

	_, _, err := env.tokens.Issue(context.Background(), IssueInput{ExamID: exam.ID, MaxUsage: -1})
	assert.ErrorIs(t, err, ErrInvalidTokenInput)

	_, _, err = env.tokens.Issue(context.Background(), IssueInput{ExamID: exam.ID, ExpiresInHours: -2})
	assert.ErrorIs(t, err, ErrInvalidTokenInput)
}

func TestTokenService_IssueRetriesOnCollision(t *testing.T) {
	env := newTestEnv(t, nil)
	exam := env.seedExam(t)
	require.NoError(t, env.stores.Tokens.Create(context.Background(), &model.AccessToken{
		ID: uuid.New(), Code: "AAAA-AAA", ExamID: exam.ID, IsActive: true, MaxUsage: 1,
	}))

	codes := []string{"AAAA-AAA", "AAAA-AAA", "BBBB-BBB"}
	calls := 0
	env.tokens.WithCodeGenerator(func() (string, error) {
		c := codes[calls]
		calls++
		return c, nil
	})

	tok, _, err := env.tokens.Issue(context.Background(), IssueInput{ExamID: exam.ID})
	require.NoError(t, err)
	assert.Equal(t, "BBBB-BBB", tok.Code)
	assert.Equal(t, 3, calls)
}

func TestTokenService_IssueGivesUpAfterBoundedAttempts(t *testing.T) {
	env := newTestEnv(t, nil)
	exam := env.seedExam(t)
	require.NoError(t, env.stores.Tokens.Create(context.Background(), &model.AccessToken{
		ID: uuid.New(), Code: "ZZZZ-ZZZ", ExamID: exam.ID, IsActive: true, MaxUsage: 1,
	}))

	calls := 0
	env.tokens.WithCodeGenerator(func() (string, error) {
		calls++
		return "ZZZZ-ZZZ", nil
	})

	_, _, err := env.tokens.Issue(context.Background(), IssueInput{ExamID: exam.ID})
	assert.ErrorIs(t, err, ErrCodeSpaceExhausted)
	assert.Equal(t, maxCodeAttempts, calls)
}

func TestTokenService_IssueGeneratorError(t *testing.T) {
	env := newTestEnv(t, nil)
	exam := env.seedExam(t)
	boom := errors.New("entropy unavailable")
	env.tokens.WithCodeGenerator(func() (string, error) { return "", boom })

	_, _, err := env.tokens.Issue(context.Background(), IssueInput{ExamID: exam.ID})
	assert.ErrorIs(t, err, boom)
}

func TestTokenService_ValidateReasons(t *testing.T) {
	env := newTestEnv(t, nil)
	exam := env.seedExam(t)
	ctx := context.Background()

	tok, _, err := env.tokens.Issue(ctx, IssueInput{ExamID: exam.ID})
	require.NoError(t, err)

	v, err := env.tokens.Validate(ctx, "  "+tok.Code+" ")
	require.NoError(t, err)
	assert.True(t, v.Valid())
	assert.Equal(t, exam.ID, v.Exam.ID)
	assert.Equal(t, "Token is valid", v.Reason.Message())

	v, err = env.tokens.Validate(ctx, "NOPE-000")
	require.NoError(t, err)
	assert.Equal(t, TokenNotFound, v.Reason)
	assert.Equal(t, "Invalid token", v.Reason.Message())

	v, err = env.tokens.Validate(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, TokenNotFound, v.Reason)
}

func TestTokenService_ValidateDoesNotConsume(t *testing.T) {
	env := newTestEnv(t, nil)
	exam := env.seedExam(t)
	ctx := context.Background()

	tok, _, err := env.tokens.Issue(ctx, IssueInput{ExamID: exam.ID})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		v, err := env.tokens.Validate(ctx, tok.Code)
		require.NoError(t, err)
		assert.True(t, v.Valid())
	}
	assert.Equal(t, 0, env.db.tokens[tok.Code].UsageCount)
}

func TestTokenService_ExpiredIsDistinctFromNotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	exam := env.seedExam(t)
	ctx := context.Background()

	tok, _, err := env.tokens.Issue(ctx, IssueInput{ExamID: exam.ID, ExpiresInHours: 0.001})
	require.NoError(t, err)

	v, err := env.tokens.Validate(ctx, tok.Code)
	require.NoError(t, err)
	assert.True(t, v.Valid())

	env.clock.Advance(4 * time.Second)
	v, err = env.tokens.Validate(ctx, tok.Code)
	require.NoError(t, err)
	assert.Equal(t, TokenExpired, v.Reason)
	assert.Equal(t, "Token has expired", v.Reason.Message())
}

func TestTokenService_ExpiryInstantIsInvalid(t *testing.T) {
	env := newTestEnv(t, nil)
	exam := env.seedExam(t)
	ctx := context.Background()

	tok, _, err := env.tokens.Issue(ctx, IssueInput{ExamID: exam.ID, ExpiresInHours: 1})
	require.NoError(t, err)

	env.clock.Advance(time.Hour)
	v, err := env.tokens.Validate(ctx, tok.Code)
	require.NoError(t, err)
	assert.Equal(t, TokenExpired, v.Reason)
}

func TestTokenService_DeactivatedReadsAsNotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	exam := env.seedExam(t)
	ctx := context.Background()

	tok, _, err := env.tokens.Issue(ctx, IssueInput{ExamID: exam.ID})
	require.NoError(t, err)
	require.NoError(t, env.tokens.Deactivate(ctx, tok.Code))

	v, err := env.tokens.Validate(ctx, tok.Code)
	require.NoError(t, err)
	assert.Equal(t, TokenNotFound, v.Reason)
	assert.NotNil(t, v.Token)
}

func TestTokenService_ExamMissingAfterDelete(t *testing.T) {
	env := newTestEnv(t, nil)
	exam := env.seedExam(t)
	ctx := context.Background()

	tok, _, err := env.tokens.Issue(ctx, IssueInput{ExamID: exam.ID})
	require.NoError(t, err)
	require.NoError(t, env.exams.Delete(ctx, exam.ID))

	v, err := env.tokens.Validate(ctx, tok.Code)
	require.NoError(t, err)
	assert.Equal(t, TokenExamMissing, v.Reason)
	assert.Equal(t, "Exam not found for this token", v.Reason.Message())
}

func TestTokenService_SeedDemoIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	seed, err := env.tokens.SeedDemo(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"DEMO1234", "TEST5678", "SAMPLE99"}, seed.Codes())
	for _, code := range seed.Codes() {
		assert.Regexp(t, demoCodePattern, code)
	}
	assert.Equal(t, "Digital Literacy Fundamentals", seed.Exam.Title)
	assert.Len(t, seed.Exam.Questions, 4)

	firstID := env.db.tokens["DEMO1234"].ID

	_, err = env.sessions.Claim(ctx, "demo1234", nil)
	require.NoError(t, err)
	require.NoError(t, env.tokens.Deactivate(ctx, "TEST5678"))
	assert.Equal(t, 1, env.db.tokens["DEMO1234"].UsageCount)

	env.clock.Advance(48 * time.Hour)
	_, err = env.tokens.SeedDemo(ctx)
	require.NoError(t, err)

	assert.Len(t, env.db.tokens, 3)
	assert.Len(t, env.db.exams, 1)
	demo := env.db.tokens["DEMO1234"]
	assert.Equal(t, firstID, demo.ID)
	assert.Equal(t, 0, demo.UsageCount)
	assert.Equal(t, env.clock.Now().Add(24*time.Hour), demo.ExpiresAt)
	assert.True(t, env.db.tokens["TEST5678"].IsActive)

	v, err := env.tokens.Validate(ctx, "sample99")
	require.NoError(t, err)
	assert.True(t, v.Valid())
	assert.Equal(t, model.TokenKindDemo, v.Token.Kind)
}

func TestTokenService_ListByExam(t *testing.T) {
	env := newTestEnv(t, nil)
	exam := env.seedExam(t)
	other := env.seedExam(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := env.tokens.Issue(ctx, IssueInput{ExamID: exam.ID})
		require.NoError(t, err)
	}
	_, _, err := env.tokens.Issue(ctx, IssueInput{ExamID: other.ID})
	require.NoError(t, err)

	list, err := env.tokens.ListByExam(ctx, exam.ID)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}
