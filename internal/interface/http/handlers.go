package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fitcoach-hub/fitcoach-client-hub/internal/application/command"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/application/query"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/application/saga"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/pipeline"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/shared"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/student"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/task"
)

// validate is shared across handlers; the validator is safe for
// concurrent use.
var validate = validator.New()

const maxBodyBytes = 1 << 20

// ══════════════════════════════════════════════════════════════════════════════
// PROBES
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"started_at": s.startedAt.Format(time.RFC3339),
	})
}

// handleReady probes every registered dependency and fails when any of
// them is unreachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.deps.HealthChecks))
	healthy := true

	for name, checker := range s.deps.HealthChecks {
		if err := checker.Ping(r.Context()); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, map[string]interface{}{
		"ready":  healthy,
		"checks": checks,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SIGNUP
// ══════════════════════════════════════════════════════════════════════════════

type signupRequest struct {
	OrgName     string `json:"org_name" validate:"required,min=2,max=120"`
	TrainerName string `json:"trainer_name" validate:"required,min=2,max=120"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := s.deps.SignupSaga.Execute(r.Context(), saga.SignupInput{
		OrgName:     req.OrgName,
		TrainerName: req.TrainerName,
		Email:       req.Email,
		Password:    req.Password,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	stages := make([]stageResponse, 0, len(result.Stages))
	for _, st := range result.Stages {
		stages = append(stages, stageResponseFrom(st))
	}

	writeJSON(w, r, http.StatusCreated, map[string]interface{}{
		"org": map[string]interface{}{
			"id":   result.Org.ID,
			"name": result.Org.Name,
			"plan": result.Org.Plan,
		},
		"trainer": map[string]interface{}{
			"id":    result.Trainer.ID,
			"name":  result.Trainer.Name,
			"email": result.Trainer.Email,
		},
		"stages": stages,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

type createStudentRequest struct {
	Name       string `json:"name" validate:"required,min=2,max=120"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone" validate:"omitempty,max=32"`
	OnboardOpt string `json:"onboard_opt" validate:"omitempty,oneof=nao_enviar enviar"`
	TrainerID  string `json:"trainer_id" validate:"omitempty,uuid4"`

	// StudentID lets a client retry a timed-out create without
	// duplicating the student.
	StudentID string `json:"student_id" validate:"omitempty,uuid4"`
}

func (s *Server) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	orgID := getOrgID(r)
	if orgID == "" {
		writeJSONError(w, r, http.StatusBadRequest, "validation", "X-Org-ID header is required")
		return
	}

	var req createStudentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	opt := student.OnboardOpt(req.OnboardOpt)
	if req.OnboardOpt == "" {
		opt = student.OnboardSkip
	}

	result, err := s.deps.ProvisioningSaga.Execute(r.Context(), saga.ProvisioningInput{
		OrgID:      orgID,
		TrainerID:  req.TrainerID,
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
		StudentID:  req.StudentID,
		OnboardOpt: opt,
	})
	if err != nil {
		writeProvisioningError(w, r, err)
		return
	}

	body := map[string]interface{}{
		"student":             studentResponseFrom(result.Student),
		"already_provisioned": result.AlreadyProvisioned,
	}
	if result.Card != nil {
		body["card"] = cardResponseFrom(result.Card)
	}

	status := http.StatusCreated
	if result.AlreadyProvisioned {
		status = http.StatusOK
	}
	writeJSON(w, r, status, body)
}

func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	orgID := getOrgID(r)
	if orgID == "" {
		writeJSONError(w, r, http.StatusBadRequest, "validation", "X-Org-ID header is required")
		return
	}

	result, err := s.deps.ListStudents.Handle(r.Context(), query.ListStudentsQuery{
		OrgID:  orgID,
		Search: getQueryParam(r, "q"),
		Status: student.Status(getQueryParam(r, "status")),
		Page:   getQueryParamInt(r, "page", 1),
		Limit:  getQueryParamInt(r, "limit", 0),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	items := make([]studentResponse, 0, len(result.Students))
	for _, st := range result.Students {
		items = append(items, studentResponseFrom(st))
	}

	writeJSONWithMeta(w, r, http.StatusOK, items, ResponseMeta{
		Page:       result.Page,
		Limit:      result.Limit,
		Total:      result.Total,
		TotalPages: result.TotalPages,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// RELATIONSHIP TASKS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	orgID := getOrgID(r)
	if orgID == "" {
		writeJSONError(w, r, http.StatusBadRequest, "validation", "X-Org-ID header is required")
		return
	}

	filter := task.Filter{
		Bucket:       task.Bucket(getQueryParam(r, "bucket")),
		Anchor:       getQueryParam(r, "anchor"),
		TemplateCode: getQueryParam(r, "template_code"),
		Channel:      task.Channel(getQueryParam(r, "channel")),
		Text:         getQueryParam(r, "q"),
		Today:        getQueryParamBool(r, "today"),
	}

	var err error
	if filter.CreatedFrom, err = parseDateParam(r, "created_from"); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "validation", err.Error())
		return
	}
	if filter.CreatedTo, err = parseDateParam(r, "created_to"); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "validation", err.Error())
		return
	}

	result, err := s.deps.ListTasks.Handle(r.Context(), query.ListTasksQuery{
		OrgID:  orgID,
		Filter: filter,
		Page:   getQueryParamInt(r, "page", 1),
		Limit:  getQueryParamInt(r, "limit", 0),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	items := make([]taskResponse, 0, len(result.Items))
	for _, item := range result.Items {
		items = append(items, taskResponseFrom(item.Task, item.Bucket))
	}

	writeJSONWithMeta(w, r, http.StatusOK, items, ResponseMeta{
		Page:       result.Page,
		Limit:      result.Limit,
		Total:      result.Total,
		TotalPages: result.TotalPages,
	})
}

func (s *Server) handleBucketCounts(w http.ResponseWriter, r *http.Request) {
	orgID := getOrgID(r)
	if orgID == "" {
		writeJSONError(w, r, http.StatusBadRequest, "validation", "X-Org-ID header is required")
		return
	}

	counts, err := s.deps.BucketCounts.Handle(r.Context(), query.BucketCountsQuery{
		OrgID: orgID,
		Fresh: getQueryParamBool(r, "fresh"),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, counts)
}

type updateTaskStatusRequest struct {
	Status      string `json:"status" validate:"required,oneof=pending sent snoozed skipped failed"`
	SnoozeUntil string `json:"snooze_until" validate:"omitempty"`
}

func (s *Server) handleUpdateTaskStatus(w http.ResponseWriter, r *http.Request) {
	orgID := getOrgID(r)
	if orgID == "" {
		writeJSONError(w, r, http.StatusBadRequest, "validation", "X-Org-ID header is required")
		return
	}

	var req updateTaskStatusRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	var snoozeUntil time.Time
	if req.SnoozeUntil != "" {
		var err error
		snoozeUntil, err = time.Parse(time.RFC3339, req.SnoozeUntil)
		if err != nil {
			writeJSONError(w, r, http.StatusBadRequest, "validation",
				"snooze_until must be an RFC 3339 timestamp")
			return
		}
	}

	updated, err := s.deps.UpdateTaskStatus.Handle(r.Context(), command.UpdateTaskStatusCommand{
		OrgID:       orgID,
		TaskID:      r.PathValue("id"),
		Status:      task.Status(req.Status),
		SnoozeUntil: snoozeUntil,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, taskResponseFrom(updated, ""))
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE SHAPES
// ══════════════════════════════════════════════════════════════════════════════

type studentResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	Status     string `json:"status"`
	OnboardOpt string `json:"onboard_opt"`
	TrainerID  string `json:"trainer_id,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func studentResponseFrom(st *student.Student) studentResponse {
	return studentResponse{
		ID:         st.ID,
		Name:       st.Name,
		Email:      st.Email,
		Phone:      st.Phone,
		Status:     string(st.Status),
		OnboardOpt: string(st.OnboardOpt),
		TrainerID:  st.TrainerID,
		CreatedAt:  st.CreatedAt.Format(time.RFC3339),
	}
}

type cardResponse struct {
	ID       string `json:"id"`
	StageID  string `json:"stage_id"`
	Position int    `json:"position"`
}

func cardResponseFrom(c *pipeline.Card) cardResponse {
	return cardResponse{ID: c.ID, StageID: c.StageID, Position: c.Position}
}

type stageResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

func stageResponseFrom(st *pipeline.Stage) stageResponse {
	return stageResponse{ID: st.ID, Name: st.Name, Position: st.Position}
}

type taskResponse struct {
	ID           string `json:"id"`
	StudentID    string `json:"student_id"`
	StudentName  string `json:"student_name,omitempty"`
	TemplateCode string `json:"template_code"`
	Anchor       string `json:"anchor"`
	Channel      string `json:"channel"`
	Status       string `json:"status"`
	Bucket       string `json:"bucket,omitempty"`
	ScheduledFor string `json:"scheduled_for"`
	SentAt       string `json:"sent_at,omitempty"`
	Payload      string `json:"payload,omitempty"`
}

func taskResponseFrom(t *task.Task, bucket task.Bucket) taskResponse {
	resp := taskResponse{
		ID:           t.ID,
		StudentID:    t.StudentID,
		StudentName:  t.StudentName,
		TemplateCode: t.TemplateCode,
		Anchor:       t.Anchor,
		Channel:      string(t.Channel),
		Status:       string(t.Status),
		Bucket:       string(bucket),
		ScheduledFor: t.ScheduledFor.Format(time.RFC3339),
		Payload:      t.Payload,
	}
	if t.SentAt != nil {
		resp.SentAt = t.SentAt.Format(time.RFC3339)
	}
	return resp
}

// ══════════════════════════════════════════════════════════════════════════════
// DECODING AND ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// decodeAndValidate reads the JSON body into dst and runs struct
// validation. On failure it writes the error response and returns false.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()

	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			writeJSONError(w, r, http.StatusBadRequest, "validation", "request body is required")
			return false
		}
		writeJSONErrorWithDetails(w, r, http.StatusBadRequest, "validation",
			"malformed request body", err.Error())
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			writeJSONErrorWithDetails(w, r, http.StatusBadRequest, "validation",
				fmt.Sprintf("field %s failed %s validation", first.Field(), first.Tag()),
				verrs.Error())
			return false
		}
		writeJSONError(w, r, http.StatusBadRequest, "validation", err.Error())
		return false
	}
	return true
}

func parseDateParam(r *http.Request, name string) (time.Time, error) {
	raw := getQueryParam(r, name)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD or RFC 3339", name)
	}
	return t, nil
}

// writeProvisioningError maps the saga's stable error codes onto HTTP
// statuses, carrying the underlying store status and body when present.
func writeProvisioningError(w http.ResponseWriter, r *http.Request, err error) {
	var perr *saga.ProvisioningError
	if !errors.As(err, &perr) {
		writeDomainError(w, r, err)
		return
	}

	status := http.StatusInternalServerError
	switch perr.Code {
	case saga.CodeValidation:
		status = http.StatusBadRequest
	case saga.CodeUniqueEmail:
		status = http.StatusConflict
	case saga.CodeLimitReached, saga.CodeNoStage:
		status = http.StatusUnprocessableEntity
	case saga.CodeKanbanCardFailed, saga.CodeInsertFailed:
		status = http.StatusBadGateway
	}

	details := ""
	if storeStatus, body, ok := perr.StoreDetail(); ok {
		details = fmt.Sprintf("store responded %d: %s", storeStatus, body)
	}
	writeJSONErrorWithDetails(w, r, status, string(perr.Code), perr.Message, details)
}

// writeDomainError maps domain sentinel errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrInvalidInput):
		writeJSONError(w, r, http.StatusBadRequest, "validation", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		writeJSONError(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, shared.ErrEmailTaken):
		writeJSONError(w, r, http.StatusConflict, "unique_email", "email already registered")
	case errors.Is(err, shared.ErrConflict), errors.Is(err, shared.ErrStateTransition):
		writeJSONError(w, r, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, shared.ErrLimitReached):
		writeJSONError(w, r, http.StatusUnprocessableEntity, "limit_reached", err.Error())
	default:
		writeJSONError(w, r, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
	}
}
