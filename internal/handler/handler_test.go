package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/examflow/examflow-backend/internal/cache"
	"github.com/examflow/examflow-backend/internal/config"
	"github.com/examflow/examflow-backend/internal/generator"
	"github.com/examflow/examflow-backend/internal/handler"
	"github.com/examflow/examflow-backend/internal/middleware"
	"github.com/examflow/examflow-backend/internal/model"
	"github.com/examflow/examflow-backend/internal/repository/sqlite"
	"github.com/examflow/examflow-backend/internal/router"
	"github.com/examflow/examflow-backend/internal/service"
	"github.com/examflow/examflow-backend/internal/storage"
	"github.com/examflow/examflow-backend/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

type testEnv struct {
	router *gin.Engine
	exams  *service.AssessmentService
	mr     *miniredis.Miniredis
}

type envOptions struct {
	demoEnabled  bool
	authRequired bool
}

func setupEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	ctx := context.Background()
	log := zerolog.Nop()
	validator.Setup()

	db, err := sqlx.Open("sqlite", ":memory:?_time_format=sqlite")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	stores, err := sqlite.NewStores(ctx, db)
	require.NoError(t, err)
	t.Cleanup(stores.Close)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	blobs, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)

	cfg := &config.Config{
		GinMode:               gin.TestMode,
		JWTSecret:             "handler-test-secret",
		JWTExpiry:             time.Hour,
		BcryptCost:            4,
		MaxUploadBytes:        1 << 20,
		AdminPassword:         "1234",
		AdminAuthRequired:     opts.authRequired,
		DemoSeedingEnabled:    opts.demoEnabled,
		DefaultTokenTTL:       24 * time.Hour,
		FaceConfidenceDefault: 0.8,
		SessionCacheTTL:       time.Hour,
		AITimeout:             time.Second,
	}

	sessionCache := cache.NewSessionCache(rdb, cfg.SessionCacheTTL)
	authService, err := service.NewAuthService(cfg, rdb, log)
	require.NoError(t, err)
	exams := service.NewAssessmentService(stores.Assessments, sessionCache, log)
	tokens := service.NewTokenService(stores.Tokens, stores.Assessments, cfg.DefaultTokenTTL, log)
	sessions := service.NewSessionService(tokens, stores.Tokens, stores.Sessions, exams,
		sessionCache, service.StubVerifier{}, cfg.FaceConfidenceDefault, log)
	submissions := service.NewSubmissionService(stores.Submissions, stores.Sessions, stores.Assessments, sessionCache, log)
	documents := service.NewDocumentService(stores.Documents, blobs, service.PDFExtractor{}, cfg.MaxUploadBytes, log)
	questions := service.NewQuestionService(exams, documents, generator.NewChain(nil, generator.Fallback{}, cfg.AITimeout, log), log)
	monitor := service.NewMonitorService(stores.MonitorEvents, sessions, sessionCache, log)

	handlers := &router.Handlers{
		Auth:       handler.NewAuthHandler(authService, log),
		Token:      handler.NewTokenHandler(tokens, cfg.DemoSeedingEnabled, log),
		Session:    handler.NewSessionHandler(sessions, monitor, log),
		Submission: handler.NewSubmissionHandler(submissions, monitor, log),
		Assessment: handler.NewAssessmentHandler(exams, questions, log),
		Document:   handler.NewDocumentHandler(documents, log),
		WS:         handler.NewWSHandler(exams, sessions, monitor, log, nil),
		Health:     handler.NewHealthHandler(rdb, stores.Ping, log),
	}
	limiter := middleware.NewRateLimiter(0, time.Minute)

	return &testEnv{
		router: router.SetupRouter(authService, handlers, limiter, cfg, log),
		exams:  exams,
		mr:     mr,
	}
}

// seedExam creates and publishes a single-question mcq exam worth one point.
func (e *testEnv) seedExam(t *testing.T) (examID uuid.UUID, questionID string) {
	t.Helper()
	correct := 2
	points := 1.0
	a, err := e.exams.Create(context.Background(), &model.CreateAssessmentRequest{
		Title:    "Arithmetic",
		Duration: 30,
		Questions: []model.QuestionInput{{
			Type:          model.QuestionTypeMCQ,
			Question:      "2 + 2 = ?",
			Options:       []string{"2", "3", "4", "5"},
			CorrectAnswer: &correct,
			Points:        &points,
		}},
	})
	require.NoError(t, err)
	_, err = e.exams.Publish(context.Background(), a.ID)
	require.NoError(t, err)
	return a.ID, a.Questions[0].ID
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return e.doAuth(t, method, path, body, "")
}

func (e *testEnv) doAuth(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) issueToken(t *testing.T, examID uuid.UUID, maxUsage int) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/admin/create-token", gin.H{
		"exam_id":      examID.String(),
		"student_name": "Ada",
		"max_usage":    maxUsage,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
	}
	decode(t, w, &body)
	require.True(t, body.Success)
	return body.Token
}

func (e *testEnv) startSession(t *testing.T, code string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/students/sessions?token="+code, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		SessionID string `json:"session_id"`
	}
	decode(t, w, &body)
	require.NotEmpty(t, body.SessionID)
	return body.SessionID
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

type validation struct {
	Valid        bool   `json:"valid"`
	Reason       string `json:"reason"`
	ErrorMessage string `json:"error_message"`
	StudentToken *struct {
		Token      string `json:"token"`
		UsageCount int    `json:"usage_count"`
	} `json:"student_token"`
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	} `json:"error"`
}

// ─── Tokens ────────────────────────────────────────────────────────────

func TestCreateToken(t *testing.T) {
	env := setupEnv(t, envOptions{})
	examID, _ := env.seedExam(t)

	t.Run("unknown exam", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/admin/create-token", gin.H{"exam_id": uuid.NewString()})
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.JSONEq(t, `{"success":false,"message":"Exam not found"}`, w.Body.String())
	})

	t.Run("malformed exam id", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/admin/create-token", gin.H{"exam_id": "nope"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid max usage", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/admin/create-token", gin.H{
			"exam_id":   examID.String(),
			"max_usage": -1,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		var body envelope
		decode(t, w, &body)
		require.NotNil(t, body.Error)
		assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
		assert.Contains(t, body.Error.Fields, "max_usage")
	})

	t.Run("success", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/admin/create-token", gin.H{"exam_id": examID.String()})
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Success      bool   `json:"success"`
			Message      string `json:"message"`
			Token        string `json:"token"`
			StudentToken struct {
				MaxUsage   int  `json:"max_usage"`
				UsageCount int  `json:"usage_count"`
				IsActive   bool `json:"is_active"`
			} `json:"student_token"`
			ExamInfo struct {
				Title string `json:"title"`
			} `json:"exam_info"`
		}
		decode(t, w, &body)
		assert.True(t, body.Success)
		assert.Equal(t, "Token created successfully", body.Message)
		assert.Regexp(t, `^[A-Z0-9]{4}-[A-Z0-9]{3}$`, body.Token)
		assert.Equal(t, 1, body.StudentToken.MaxUsage)
		assert.Zero(t, body.StudentToken.UsageCount)
		assert.True(t, body.StudentToken.IsActive)
		assert.Equal(t, "Arithmetic", body.ExamInfo.Title)
	})
}

func TestValidateToken(t *testing.T) {
	env := setupEnv(t, envOptions{})
	examID, _ := env.seedExam(t)
	code := env.issueToken(t, examID, 1)

	validate := func(path, token string) validation {
		w := env.do(t, http.MethodPost, path, gin.H{"token": token})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var v validation
		decode(t, w, &v)
		return v
	}

	t.Run("read only", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			v := validate("/api/student/validate-token", code)
			assert.True(t, v.Valid)
			assert.Equal(t, "valid", v.Reason)
			require.NotNil(t, v.StudentToken)
			assert.Zero(t, v.StudentToken.UsageCount)
		}
	})

	t.Run("alias route and lowercase input", func(t *testing.T) {
		v := validate("/api/tokens/validate", " "+strings.ToLower(code)+" ")
		assert.True(t, v.Valid)
	})

	t.Run("empty token", func(t *testing.T) {
		v := validate("/api/student/validate-token", "")
		assert.False(t, v.Valid)
		assert.Equal(t, "not_found", v.Reason)
		assert.NotEmpty(t, v.ErrorMessage)
	})

	t.Run("missing field", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/student/validate-token", gin.H{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCreateDemoTokens(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		env := setupEnv(t, envOptions{})
		w := env.do(t, http.MethodPost, "/api/student/create-demo-token", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("enabled and idempotent", func(t *testing.T) {
		env := setupEnv(t, envOptions{demoEnabled: true})
		for i := 0; i < 2; i++ {
			w := env.do(t, http.MethodPost, "/api/student/create-demo-token", nil)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			var body struct {
				Success bool     `json:"success"`
				Tokens  []string `json:"tokens"`
			}
			decode(t, w, &body)
			assert.True(t, body.Success)
			assert.ElementsMatch(t, []string{"DEMO1234", "TEST5678", "SAMPLE99"}, body.Tokens)
		}
	})
}

// ─── Sessions & Submissions ────────────────────────────────────────────

func TestStartSession(t *testing.T) {
	env := setupEnv(t, envOptions{})
	examID, _ := env.seedExam(t)
	code := env.issueToken(t, examID, 1)

	t.Run("missing token", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/students/sessions", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("claim once", func(t *testing.T) {
		env.startSession(t, code)

		w := env.do(t, http.MethodPost, "/api/students/sessions", gin.H{"token": code})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		var body struct {
			Success bool   `json:"success"`
			Reason  string `json:"reason"`
		}
		decode(t, w, &body)
		assert.False(t, body.Success)
		assert.Equal(t, "usage_exceeded", body.Reason)
	})

	t.Run("unknown token", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/students/sessions?token=ZZZZ-ZZZ", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), `"not_found"`)
	})
}

func TestGetPaperHidesAnswerKey(t *testing.T) {
	env := setupEnv(t, envOptions{})
	examID, _ := env.seedExam(t)
	sessionID := env.startSession(t, env.issueToken(t, examID, 1))

	w := env.do(t, http.MethodGet, "/api/student/sessions/"+sessionID+"/paper", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Data struct {
			Settings  map[string]json.RawMessage   `json:"question_settings"`
			Questions []map[string]json.RawMessage `json:"questions"`
		} `json:"data"`
	}
	decode(t, w, &body)
	require.Len(t, body.Data.Questions, 1)
	q := body.Data.Questions[0]
	assert.NotContains(t, q, "correct_answer")
	assert.NotContains(t, q, "explanation")
	assert.JSONEq(t, `"2 + 2 = ?"`, string(q["question"]))
	// The settings flag is not the key itself.
	assert.Contains(t, body.Data.Settings, "show_correct_answers")

	w = env.do(t, http.MethodGet, "/api/student/sessions/"+uuid.NewString()+"/paper", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmit(t *testing.T) {
	env := setupEnv(t, envOptions{})
	examID, questionID := env.seedExam(t)
	sessionID := env.startSession(t, env.issueToken(t, examID, 1))

	submit := func(session string) *httptest.ResponseRecorder {
		return env.do(t, http.MethodPost, "/api/submissions", gin.H{
			"session_id":       session,
			"total_time_spent": 120,
			"answers": []gin.H{
				{"question_id": questionID, "answer": 2, "time_spent": 120},
			},
		})
	}

	t.Run("unknown session", func(t *testing.T) {
		w := submit(uuid.NewString())
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.JSONEq(t, `{"success":false,"message":"Session not found"}`, w.Body.String())
	})

	var submissionID string
	t.Run("scores answers", func(t *testing.T) {
		w := submit(sessionID)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var body struct {
			Success      bool                    `json:"success"`
			SubmissionID string                  `json:"submission_id"`
			Summary      model.SubmissionSummary `json:"summary"`
		}
		decode(t, w, &body)
		assert.True(t, body.Success)
		assert.Equal(t, 1, body.Summary.TotalQuestions)
		assert.Equal(t, 1, body.Summary.QuestionsAttempted)
		assert.Equal(t, 1.0, body.Summary.Score)
		assert.Equal(t, 1.0, body.Summary.MaxScore)
		assert.Equal(t, 100.0, body.Summary.Percentage)
		assert.Equal(t, 2.0, body.Summary.TimeSpentMinutes)
		submissionID = body.SubmissionID
	})

	t.Run("resubmission conflicts", func(t *testing.T) {
		w := submit(sessionID)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.JSONEq(t, `{"success":false,"message":"Exam has already been submitted"}`, w.Body.String())
	})

	t.Run("get submission", func(t *testing.T) {
		require.NotEmpty(t, submissionID)
		w := env.do(t, http.MethodGet, "/api/submissions/"+submissionID, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var detail model.SubmissionDetail
		decode(t, w, &detail)
		assert.Equal(t, "Arithmetic", detail.ExamTitle)
		assert.Equal(t, model.SubmissionStatusCompleted, detail.Status)
	})

	t.Run("unknown submission", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/submissions/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.JSONEq(t, `{"success":false,"message":"Submission not found"}`, w.Body.String())
	})

	t.Run("malformed submission id", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/submissions/not-a-uuid", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.JSONEq(t, `{"success":false,"message":"Submission not found"}`, w.Body.String())
	})

	t.Run("closed session rejects events", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/student/sessions/"+sessionID+"/events", gin.H{
			"event_type": "tab_switch",
			"severity":   "low",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

// ─── Documents ─────────────────────────────────────────────────────────

func TestUploadDocumentRejectsNonPDF(t *testing.T) {
	env := setupEnv(t, envOptions{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("plain text"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body envelope
	decode(t, w, &body)
	require.NotNil(t, body.Error)
	assert.Equal(t, "UNSUPPORTED_FILE_TYPE", body.Error.Code)
}

func TestUploadDocumentRequiresFile(t *testing.T) {
	env := setupEnv(t, envOptions{})
	w := env.do(t, http.MethodPost, "/api/documents/upload", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ─── Auth ───────────────────────────────────────────────────────────────

func TestAdminAuthFlow(t *testing.T) {
	env := setupEnv(t, envOptions{authRequired: true})

	w := env.do(t, http.MethodPost, "/api/auth/admin/login", gin.H{"password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/api/auth/admin/login", gin.H{"password": "1234"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var login struct {
		Data model.AdminLoginResponse `json:"data"`
	}
	decode(t, w, &login)
	token := login.Data.Token
	require.NotEmpty(t, token)

	// Admin routes are closed without a token once auth is required.
	w = env.do(t, http.MethodGet, "/api/assessments", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = env.doAuth(t, http.MethodGet, "/api/assessments", nil, token)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.doAuth(t, http.MethodGet, "/api/auth/admin/me", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"subject":"admin"`)

	w = env.doAuth(t, http.MethodPost, "/api/auth/admin/logout", nil, token)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.doAuth(t, http.MethodGet, "/api/auth/admin/me", nil, token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// ─── Ops ───────────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := setupEnv(t, envOptions{})

	w := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"ok"`)

	env.mr.Close()
	w = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"unavailable"`)
}
