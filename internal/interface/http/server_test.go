package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitcoach-hub/fitcoach-client-hub/internal/application/command"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/application/query"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/application/saga"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/pipeline"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/shared"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/student"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/task"
	"github.com/fitcoach-hub/fitcoach-client-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// FAKES
// ══════════════════════════════════════════════════════════════════════════════

type fakeStudentRepo struct {
	mu       sync.Mutex
	students map[string]*student.Student
}

func newFakeStudentRepo() *fakeStudentRepo {
	return &fakeStudentRepo{students: make(map[string]*student.Student)}
}

func (r *fakeStudentRepo) Create(_ context.Context, s *student.Student) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.students {
		if existing.Email == s.Email {
			return shared.WrapDomainError("student", "Create", shared.ErrEmailTaken,
				"email already registered", shared.ErrConflict)
		}
	}
	cp := *s
	r.students[s.ID] = &cp
	return nil
}

func (r *fakeStudentRepo) GetByID(_ context.Context, _, id string) (*student.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.students[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, shared.ErrNotFound
}

func (r *fakeStudentRepo) List(_ context.Context, _ string, f student.ListFilter) ([]*student.Student, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*student.Student
	for _, s := range r.students {
		if f.Search != "" && !strings.Contains(strings.ToLower(s.Name), strings.ToLower(f.Search)) {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (r *fakeStudentRepo) UpdateOnboardOpt(_ context.Context, _, id string, opt student.OnboardOpt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.students[id]
	if !ok {
		return shared.ErrNotFound
	}
	s.OnboardOpt = opt
	return nil
}

func (r *fakeStudentRepo) Delete(_ context.Context, _, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.students, id)
	return nil
}

type fakeCardRepo struct {
	mu    sync.Mutex
	cards map[string]*pipeline.Card // by student ID
}

func newFakeCardRepo() *fakeCardRepo {
	return &fakeCardRepo{cards: make(map[string]*pipeline.Card)}
}

func (r *fakeCardRepo) ExistsForStudent(_ context.Context, _, studentID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.cards[studentID]
	return ok, nil
}

func (r *fakeCardRepo) MaxPositionInStage(_ context.Context, _, _ string) (int, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	max, found := 0, false
	for _, c := range r.cards {
		found = true
		if c.Position > max {
			max = c.Position
		}
	}
	return max, found, nil
}

func (r *fakeCardRepo) Create(_ context.Context, c *pipeline.Card, _ ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cards[c.StudentID]; ok {
		return shared.ConflictError(409, `duplicate key value violates unique constraint`)
	}
	cp := *c
	r.cards[c.StudentID] = &cp
	return nil
}

func (r *fakeCardRepo) DeleteByStudent(_ context.Context, _, studentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cards, studentID)
	return nil
}

type fakeStageRepo struct {
	stages []*pipeline.Stage
}

func (r *fakeStageRepo) GetByPosition(_ context.Context, _ string, position int) (*pipeline.Stage, error) {
	for _, s := range r.stages {
		if s.Position == position {
			return s, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeStageRepo) GetLowest(_ context.Context, _ string) (*pipeline.Stage, error) {
	if len(r.stages) == 0 {
		return nil, shared.ErrNotFound
	}
	lowest := r.stages[0]
	for _, s := range r.stages[1:] {
		if s.Position < lowest.Position {
			lowest = s
		}
	}
	return lowest, nil
}

func (r *fakeStageRepo) CreateMany(_ context.Context, stages []*pipeline.Stage) error {
	r.stages = append(r.stages, stages...)
	return nil
}

type fakeTaskRepo struct {
	mu    sync.Mutex
	tasks map[string]*task.Task
}

func newFakeTaskRepo(tasks ...*task.Task) *fakeTaskRepo {
	r := &fakeTaskRepo{tasks: make(map[string]*task.Task)}
	for _, t := range tasks {
		cp := *t
		r.tasks[t.ID] = &cp
	}
	return r
}

func (r *fakeTaskRepo) GetByID(_ context.Context, _, id string) (*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, shared.ErrNotFound
}

func (r *fakeTaskRepo) Find(_ context.Context, p task.Predicate, _ task.Page) ([]*task.Task, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*task.Task
	for _, t := range r.tasks {
		if !matchesPredicate(t, p) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func matchesPredicate(t *task.Task, p task.Predicate) bool {
	if len(p.Statuses) > 0 {
		ok := false
		for _, s := range p.Statuses {
			if t.Status == s {
				ok = true
			}
		}
		if !ok {
			return false
		}
	}
	if !p.ScheduledFrom.IsZero() && t.ScheduledFor.Before(p.ScheduledFrom) {
		return false
	}
	if !p.ScheduledTo.IsZero() && t.ScheduledFor.After(p.ScheduledTo) {
		return false
	}
	if p.Anchor != "" && t.Anchor != p.Anchor {
		return false
	}
	return true
}

func (r *fakeTaskRepo) FindAll(_ context.Context, _ string) ([]*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*task.Task
	for _, t := range r.tasks {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeTaskRepo) Update(_ context.Context, t *task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[t.ID]; !ok {
		return shared.ErrNotFound
	}
	cp := *t
	r.tasks[t.ID] = &cp
	return nil
}

type nopBus struct{}

func (nopBus) Publish(shared.Event) error { return nil }

type seqIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGen) GenerateID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%d", g.n)
}

type fakePinger struct {
	err error
}

func (p fakePinger) Ping(context.Context) error { return p.err }

// ══════════════════════════════════════════════════════════════════════════════
// HARNESS
// ══════════════════════════════════════════════════════════════════════════════

// fixedNow keeps bucket boundaries stable across the test run.
var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	server   *Server
	students *fakeStudentRepo
	cards    *fakeCardRepo
	tasks    *fakeTaskRepo
}

func newTestEnv(t *testing.T, tasks ...*task.Task) *testEnv {
	t.Helper()

	log := logger.New(logger.Options{Output: io.Discard})
	students := newFakeStudentRepo()
	cards := newFakeCardRepo()
	stages := &fakeStageRepo{stages: []*pipeline.Stage{
		{ID: "stage-1", OrgID: "org-1", Name: "Novo aluno", Position: 1},
	}}
	taskRepo := newFakeTaskRepo(tasks...)
	clock := func() time.Time { return fixedNow }

	deps := Dependencies{
		ProvisioningSaga: saga.NewProvisioningSaga(
			students, cards, pipeline.NewStageResolver(stages), nil, nopBus{}, &seqIDGen{}, log),
		ListStudents:     query.NewListStudentsHandler(students, log),
		ListTasks:        query.NewListTasksHandler(taskRepo, clock, log),
		BucketCounts:     query.NewBucketCountsHandler(taskRepo, nil, 0, clock, log),
		UpdateTaskStatus: command.NewUpdateTaskStatusHandler(taskRepo, nopBus{}, nil, log),
		HealthChecks:     map[string]HealthChecker{"store": fakePinger{}},
		Logger:           log,
	}

	config := DefaultConfig()
	config.RateLimitPerMinute = 0

	return &testEnv{
		server:   NewServer(config, deps),
		students: students,
		cards:    cards,
		tasks:    taskRepo,
	}
}

func (e *testEnv) do(t *testing.T, method, target, orgID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	if orgID != "" {
		req.Header.Set("X-Org-ID", orgID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) JSONResponse {
	t.Helper()
	var resp JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func pendingTask(id string, scheduledFor time.Time) *task.Task {
	return &task.Task{
		ID:           id,
		OrgID:        "org-1",
		StudentID:    "student-1",
		StudentName:  "Ana Souza",
		TemplateCode: "checkin_semanal",
		Anchor:       "first_workout",
		Channel:      task.ChannelWhatsApp,
		Status:       task.StatusPending,
		ScheduledFor: scheduledFor,
		CreatedAt:    scheduledFor.Add(-48 * time.Hour),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PROBES
// ══════════════════════════════════════════════════════════════════════════════

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.RequestID)
}

func TestReadyFailsWhenDependencyIsDown(t *testing.T) {
	env := newTestEnv(t)
	env.server.deps.HealthChecks["cache"] = fakePinger{err: errors.New("connection refused")}

	rec := env.do(t, http.MethodGet, "/ready", "", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT CREATION
// ══════════════════════════════════════════════════════════════════════════════

func TestCreateStudentRequiresOrgHeader(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/students", "", map[string]string{
		"name": "Ana Souza", "email": "ana@example.com",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeEnvelope(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "validation", resp.Error.Code)
}

func TestCreateStudentRejectsInvalidEmail(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/students", "org-1", map[string]string{
		"name": "Ana Souza", "email": "not-an-email",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeEnvelope(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "validation", resp.Error.Code)
}

func TestCreateStudentProvisionsCard(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/students", "org-1", map[string]string{
		"name": "Ana Souza", "email": "ana@example.com", "onboard_opt": "enviar",
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeEnvelope(t, rec)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)

	st, ok := data["student"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "enviado", st["onboard_opt"])

	card, ok := data["card"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "stage-1", card["stage_id"])
	assert.Equal(t, false, data["already_provisioned"])
}

func TestCreateStudentWithoutOnboardingSkipsCard(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/students", "org-1", map[string]string{
		"name": "Ana Souza", "email": "ana@example.com",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeEnvelope(t, rec)
	data := resp.Data.(map[string]interface{})
	assert.NotContains(t, data, "card")
}

func TestCreateStudentDuplicateEmailConflicts(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]string{"name": "Ana Souza", "email": "ana@example.com"}

	first := env.do(t, http.MethodPost, "/api/v1/students", "org-1", body)
	require.Equal(t, http.StatusCreated, first.Code)

	second := env.do(t, http.MethodPost, "/api/v1/students", "org-1", body)
	assert.Equal(t, http.StatusConflict, second.Code)
	resp := decodeEnvelope(t, second)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "unique_email", resp.Error.Code)
}

func TestListStudentsReturnsPage(t *testing.T) {
	env := newTestEnv(t)
	created := env.do(t, http.MethodPost, "/api/v1/students", "org-1", map[string]string{
		"name": "Ana Souza", "email": "ana@example.com",
	})
	require.Equal(t, http.StatusCreated, created.Code)

	rec := env.do(t, http.MethodGet, "/api/v1/students?q=ana", "org-1", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, 1, resp.Meta.Total)
}

// ══════════════════════════════════════════════════════════════════════════════
// RELATIONSHIP TASKS
// ══════════════════════════════════════════════════════════════════════════════

func TestListTasksClassifiesBuckets(t *testing.T) {
	env := newTestEnv(t,
		pendingTask("task-overdue", fixedNow.Add(-24*time.Hour)),
		pendingTask("task-future", fixedNow.Add(72*time.Hour)),
	)

	rec := env.do(t, http.MethodGet, "/api/v1/relationship/tasks?bucket=overdue", "org-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	items, ok := resp.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, items, 1)

	item := items[0].(map[string]interface{})
	assert.Equal(t, "task-overdue", item["id"])
	assert.Equal(t, "overdue", item["bucket"])
}

func TestListTasksRejectsUnknownBucket(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/relationship/tasks?bucket=bogus", "org-1", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeEnvelope(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "validation", resp.Error.Code)
}

func TestBucketCountsEndpoint(t *testing.T) {
	env := newTestEnv(t,
		pendingTask("task-overdue", fixedNow.Add(-24*time.Hour)),
		pendingTask("task-today", fixedNow.Add(2*time.Hour)),
		pendingTask("task-future", fixedNow.Add(72*time.Hour)),
	)

	rec := env.do(t, http.MethodGet, "/api/v1/relationship/tasks/counts", "org-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	counts, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), counts["overdue"])
	assert.Equal(t, float64(1), counts["due_today"])
	assert.Equal(t, float64(1), counts["pending_future"])
	assert.Equal(t, float64(3), counts["total"])
}

func TestUpdateTaskStatusTransitions(t *testing.T) {
	env := newTestEnv(t, pendingTask("task-1", fixedNow.Add(-time.Hour)))

	rec := env.do(t, http.MethodPatch, "/api/v1/relationship/tasks/task-1", "org-1",
		map[string]string{"status": "sent"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeEnvelope(t, rec)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "sent", data["status"])
	assert.NotEmpty(t, data["sent_at"])
}

func TestUpdateTaskStatusRejectsIllegalTransition(t *testing.T) {
	sent := pendingTask("task-1", fixedNow.Add(-time.Hour))
	sent.Status = task.StatusSent
	env := newTestEnv(t, sent)

	rec := env.do(t, http.MethodPatch, "/api/v1/relationship/tasks/task-1", "org-1",
		map[string]string{"status": "pending"})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateTaskStatusUnknownTask(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPatch, "/api/v1/relationship/tasks/missing", "org-1",
		map[string]string{"status": "sent"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

func TestRequestIDIsEchoed(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	resp := decodeEnvelope(t, rec)
	assert.Equal(t, "req-42", resp.RequestID)
}

func TestRateLimitReturns429(t *testing.T) {
	env := newTestEnv(t)
	config := DefaultConfig()
	config.RateLimitPerMinute = 2
	limited := NewServer(config, env.server.deps)
	defer limited.rateLimiter.stop()

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		limited.Handler().ServeHTTP(rec, req)
		last = rec.Code
	}

	assert.Equal(t, http.StatusTooManyRequests, last)
}
