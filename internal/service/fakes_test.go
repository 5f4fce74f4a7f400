package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/examflow/examflow-backend/internal/cache"
	"github.com/examflow/examflow-backend/internal/model"
	"github.com/examflow/examflow-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// memDB backs the in-memory stores. One mutex serialises every operation,
// which gives Claim and Create the same all-or-nothing behaviour as a
// database transaction.
type memDB struct {
	mu          sync.Mutex
	tokens      map[string]*model.AccessToken
	exams       map[uuid.UUID]*model.Assessment
	sessions    map[uuid.UUID]*model.ExamSession
	submissions map[uuid.UUID]*model.Submission
	docs        map[uuid.UUID]*model.Document
	events      []model.MonitorEvent
}

func newMemDB() *memDB {
	return &memDB{
		tokens:      map[string]*model.AccessToken{},
		exams:       map[uuid.UUID]*model.Assessment{},
		sessions:    map[uuid.UUID]*model.ExamSession{},
		submissions: map[uuid.UUID]*model.Submission{},
		docs:        map[uuid.UUID]*model.Document{},
	}
}

func (db *memDB) stores() *repository.Stores {
	return &repository.Stores{
		Tokens:        &memTokens{db},
		Assessments:   &memAssessments{db},
		Sessions:      &memSessions{db},
		Submissions:   &memSubmissions{db},
		Documents:     &memDocuments{db},
		MonitorEvents: &memEvents{db},
		Close:         func() {},
	}
}

type memTokens struct{ db *memDB }

func (m *memTokens) Create(_ context.Context, t *model.AccessToken) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.tokens[t.Code]; ok {
		return repository.ErrDuplicate
	}
	cp := *t
	m.db.tokens[t.Code] = &cp
	return nil
}

func (m *memTokens) CodeExists(_ context.Context, code string) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	_, ok := m.db.tokens[code]
	return ok, nil
}

func (m *memTokens) GetByCode(_ context.Context, code string) (*model.AccessToken, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	t, ok := m.db.tokens[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTokens) Upsert(_ context.Context, t *model.AccessToken) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if old, ok := m.db.tokens[t.Code]; ok {
		t.ID = old.ID
		t.CreatedAt = old.CreatedAt
	}
	cp := *t
	m.db.tokens[t.Code] = &cp
	return nil
}

func (m *memTokens) Claim(_ context.Context, code string, now time.Time, sess *model.ExamSession) (*model.AccessToken, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	t, ok := m.db.tokens[code]
	if !ok || !t.IsActive || !now.Before(t.ExpiresAt) || t.UsageCount >= t.MaxUsage {
		return nil, repository.ErrConflict
	}
	t.UsageCount++
	sess.TokenID = t.ID
	sess.TokenCode = t.Code
	sess.ExamID = t.ExamID
	sess.StudentName = t.StudentName
	sess.Status = model.SessionStatusInProgress
	cp := *sess
	m.db.sessions[sess.ID] = &cp
	out := *t
	return &out, nil
}

func (m *memTokens) Deactivate(_ context.Context, code string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	t, ok := m.db.tokens[code]
	if !ok {
		return repository.ErrNotFound
	}
	t.IsActive = false
	return nil
}

func (m *memTokens) ListByExam(_ context.Context, examID uuid.UUID) ([]model.AccessToken, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := []model.AccessToken{}
	for _, t := range m.db.tokens {
		if t.ExamID == examID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

type memAssessments struct{ db *memDB }

func cloneAssessment(a *model.Assessment) *model.Assessment {
	cp := *a
	cp.Questions = append(model.QuestionList{}, a.Questions...)
	return &cp
}

func (m *memAssessments) Create(_ context.Context, a *model.Assessment) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.exams[a.ID]; ok {
		return repository.ErrDuplicate
	}
	m.db.exams[a.ID] = cloneAssessment(a)
	return nil
}

func (m *memAssessments) GetByID(_ context.Context, id uuid.UUID) (*model.Assessment, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	a, ok := m.db.exams[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneAssessment(a), nil
}

func (m *memAssessments) List(_ context.Context, limit, offset int) ([]model.Assessment, int, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	all := make([]model.Assessment, 0, len(m.db.exams))
	for _, a := range m.db.exams {
		all = append(all, *cloneAssessment(a))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *memAssessments) ListPublished(_ context.Context) ([]model.Assessment, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := []model.Assessment{}
	for _, a := range m.db.exams {
		if a.Status == model.AssessmentStatusPublished {
			out = append(out, *cloneAssessment(a))
		}
	}
	return out, nil
}

func (m *memAssessments) Update(_ context.Context, a *model.Assessment) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.exams[a.ID]; !ok {
		return repository.ErrNotFound
	}
	m.db.exams[a.ID] = cloneAssessment(a)
	return nil
}

func (m *memAssessments) Upsert(_ context.Context, a *model.Assessment) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.exams[a.ID] = cloneAssessment(a)
	return nil
}

func (m *memAssessments) Delete(_ context.Context, id uuid.UUID) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.exams[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.db.exams, id)
	return nil
}

func (m *memAssessments) AppendQuestions(_ context.Context, id uuid.UUID, qs []model.Question) (*model.Assessment, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	a, ok := m.db.exams[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	a.Questions = append(a.Questions, qs...)
	return cloneAssessment(a), nil
}

func (m *memAssessments) RemoveQuestion(_ context.Context, id uuid.UUID, questionID string) (*model.Assessment, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	a, ok := m.db.exams[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	kept := model.QuestionList{}
	for _, q := range a.Questions {
		if q.ID != questionID {
			kept = append(kept, q)
		}
	}
	if len(kept) == len(a.Questions) {
		return nil, repository.ErrNotFound
	}
	a.Questions = kept
	return cloneAssessment(a), nil
}

type memSessions struct{ db *memDB }

func (m *memSessions) GetByID(_ context.Context, id uuid.UUID) (*model.ExamSession, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	s, ok := m.db.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

type memSubmissions struct{ db *memDB }

func (m *memSubmissions) Create(_ context.Context, s *model.Submission) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	sess, ok := m.db.sessions[s.SessionID]
	if !ok {
		return repository.ErrNotFound
	}
	if sess.Status != model.SessionStatusInProgress {
		return repository.ErrConflict
	}
	at := s.SubmissionTime
	sess.Status = model.SessionStatusSubmitted
	sess.SubmittedAt = &at
	cp := *s
	m.db.submissions[s.ID] = &cp
	return nil
}

func (m *memSubmissions) GetByID(_ context.Context, id uuid.UUID) (*model.Submission, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	s, ok := m.db.submissions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSubmissions) ListByExam(_ context.Context, examID uuid.UUID, limit, offset int) ([]model.Submission, int, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	all := []model.Submission{}
	for _, s := range m.db.submissions {
		if s.ExamID == examID {
			all = append(all, *s)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].SubmissionTime.After(all[j].SubmissionTime) })
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

type memDocuments struct{ db *memDB }

func (m *memDocuments) Create(_ context.Context, d *model.Document) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	cp := *d
	m.db.docs[d.ID] = &cp
	return nil
}

func (m *memDocuments) GetByID(_ context.Context, id uuid.UUID) (*model.Document, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	d, ok := m.db.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

type memEvents struct{ db *memDB }

func (m *memEvents) InsertBatch(_ context.Context, events []model.MonitorEvent) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, e := range events {
		e.ID = int64(len(m.db.events) + 1)
		m.db.events = append(m.db.events, e)
	}
	return nil
}

func (m *memEvents) Insert(ctx context.Context, e *model.MonitorEvent) error {
	return m.InsertBatch(ctx, []model.MonitorEvent{*e})
}

func (m *memEvents) ListBySession(_ context.Context, sessionID uuid.UUID) ([]model.MonitorEvent, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := []model.MonitorEvent{}
	for _, e := range m.db.events {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

// testClock is a settable time source shared by the services under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fixedVerifier returns a preset confidence.
type fixedVerifier struct{ confidence float64 }

func (f fixedVerifier) Verify(context.Context, []byte) (float64, error) {
	return f.confidence, nil
}

type testEnv struct {
	db          *memDB
	stores      *repository.Stores
	mr          *miniredis.Miniredis
	cache       *cache.SessionCache
	clock       *testClock
	tokens      *TokenService
	exams       *AssessmentService
	sessions    *SessionService
	submissions *SubmissionService
	monitor     *MonitorService
}

func newTestEnv(t *testing.T, verifier FaceVerifier) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	db := newMemDB()
	stores := db.stores()
	sc := cache.NewSessionCache(rdb, time.Hour)
	clock := newTestClock()
	log := zerolog.Nop()

	tokens := NewTokenService(stores.Tokens, stores.Assessments, 24*time.Hour, log).WithClock(clock.Now)
	exams := NewAssessmentService(stores.Assessments, sc, log)
	sessions := NewSessionService(tokens, stores.Tokens, stores.Sessions, exams, sc, verifier, 0.7, log).WithClock(clock.Now)
	submissions := NewSubmissionService(stores.Submissions, stores.Sessions, stores.Assessments, sc, log).WithClock(clock.Now)
	monitor := NewMonitorService(stores.MonitorEvents, sessions, sc, log)

	return &testEnv{
		db: db, stores: stores, mr: mr, cache: sc, clock: clock,
		tokens: tokens, exams: exams, sessions: sessions,
		submissions: submissions, monitor: monitor,
	}
}

// seedExam stores an exam with one mcq worth 1.0 (correct index 2) and
// one descriptive question worth 2.0.
func (e *testEnv) seedExam(t *testing.T) *model.Assessment {
	t.Helper()
	a := &model.Assessment{
		ID:       uuid.New(),
		Title:    "Cell Biology",
		Duration: 30,
		Questions: model.QuestionList{
			{ID: "q1", Type: model.QuestionTypeMCQ, Question: "Powerhouse?", Options: []string{"a", "b", "c", "d"}, CorrectAnswer: intPtr(2), Explanation: "Mitochondria make ATP.", Points: 1},
			{ID: "q2", Type: model.QuestionTypeDescriptive, Question: "Explain osmosis.", Points: 2},
		},
		Status:    model.AssessmentStatusPublished,
		CreatedAt: e.clock.Now(),
	}
	if err := e.stores.Assessments.Create(context.Background(), a); err != nil {
		t.Fatalf("seed exam: %v", err)
	}
	return a
}
