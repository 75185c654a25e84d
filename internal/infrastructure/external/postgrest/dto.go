package postgrest

import (
	"time"

	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/pipeline"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/student"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/task"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/trainer"
)

// Row types mirror the store's column names. Mapping to and from the
// domain happens here so the adapters stay thin.

type studentRow struct {
	ID         string     `json:"id"`
	OrgID      string     `json:"org_id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Phone      string     `json:"phone"`
	Status     string     `json:"status"`
	OnboardOpt string     `json:"onboard_opt"`
	TrainerID  *string    `json:"trainer_id"`
	DeletedAt  *time.Time `json:"deleted_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func studentRowFrom(s *student.Student) studentRow {
	row := studentRow{
		ID:         s.ID,
		OrgID:      s.OrgID,
		Name:       s.Name,
		Email:      s.Email,
		Phone:      s.Phone,
		Status:     string(s.Status),
		OnboardOpt: string(s.OnboardOpt),
		DeletedAt:  s.DeletedAt,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
	if s.TrainerID != "" {
		row.TrainerID = &s.TrainerID
	}
	return row
}

func (r studentRow) toDomain() *student.Student {
	s := &student.Student{
		ID:         r.ID,
		OrgID:      r.OrgID,
		Name:       r.Name,
		Email:      r.Email,
		Phone:      r.Phone,
		Status:     student.Status(r.Status),
		OnboardOpt: student.OnboardOpt(r.OnboardOpt),
		DeletedAt:  r.DeletedAt,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.TrainerID != nil {
		s.TrainerID = *r.TrainerID
	}
	return s
}

type stageRow struct {
	ID       string `json:"id"`
	OrgID    string `json:"org_id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
	Color    string `json:"color"`
}

func stageRowFrom(s *pipeline.Stage) stageRow {
	return stageRow{ID: s.ID, OrgID: s.OrgID, Name: s.Name, Position: s.Position, Color: s.Color}
}

func (r stageRow) toDomain() *pipeline.Stage {
	return &pipeline.Stage{ID: r.ID, OrgID: r.OrgID, Name: r.Name, Position: r.Position, Color: r.Color}
}

// cardBody builds the insert payload for a card, leaving out the named
// optional columns. Map form so omitted columns vanish from the JSON
// instead of being sent as nulls.
func cardBody(c *pipeline.Card, omit ...string) map[string]interface{} {
	body := map[string]interface{}{
		"id":         c.ID,
		"org_id":     c.OrgID,
		"student_id": c.StudentID,
		"stage_id":   c.StageID,
		"position":   c.Position,
		"created_at": c.CreatedAt,
	}
	for _, col := range omit {
		delete(body, col)
	}
	return body
}

type taskRow struct {
	ID           string     `json:"id"`
	OrgID        string     `json:"org_id"`
	StudentID    string     `json:"student_id"`
	StudentName  string     `json:"student_name"`
	TemplateCode string     `json:"template_code"`
	Anchor       string     `json:"anchor"`
	Channel      string     `json:"channel"`
	Status       string     `json:"status"`
	ScheduledFor time.Time  `json:"scheduled_for"`
	Payload      string     `json:"payload"`
	SentAt       *time.Time `json:"sent_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (r taskRow) toDomain() *task.Task {
	return &task.Task{
		ID:           r.ID,
		OrgID:        r.OrgID,
		StudentID:    r.StudentID,
		StudentName:  r.StudentName,
		TemplateCode: r.TemplateCode,
		Anchor:       r.Anchor,
		Channel:      task.Channel(r.Channel),
		Status:       task.Status(r.Status),
		ScheduledFor: r.ScheduledFor,
		Payload:      r.Payload,
		SentAt:       r.SentAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type orgRow struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Plan      string    `json:"plan"`
	CreatedAt time.Time `json:"created_at"`
}

func orgRowFrom(o *trainer.Org) orgRow {
	return orgRow{ID: o.ID, Name: o.Name, Plan: string(o.Plan), CreatedAt: o.CreatedAt}
}

func (r orgRow) toDomain() *trainer.Org {
	return &trainer.Org{ID: r.ID, Name: r.Name, Plan: trainer.Plan(r.Plan), CreatedAt: r.CreatedAt}
}

type trainerRow struct {
	ID           string    `json:"id"`
	OrgID        string    `json:"org_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

func trainerRowFrom(t *trainer.Trainer) trainerRow {
	return trainerRow{
		ID:           t.ID,
		OrgID:        t.OrgID,
		Name:         t.Name,
		Email:        t.Email,
		PasswordHash: t.PasswordHash,
		CreatedAt:    t.CreatedAt,
	}
}

func (r trainerRow) toDomain() *trainer.Trainer {
	return &trainer.Trainer{
		ID:           r.ID,
		OrgID:        r.OrgID,
		Name:         r.Name,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
	}
}

func tasksToDomain(rows []taskRow) []*task.Task {
	out := make([]*task.Task, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out
}
