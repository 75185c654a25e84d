package student

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/shared"
)

func validParams() NewStudentParams {
	return NewStudentParams{
		ID:         "stu-1",
		OrgID:      "org-1",
		Name:       "Ana Souza",
		Email:      "Ana.Souza@Example.com",
		Phone:      "+55 (11) 98888-7777",
		OnboardOpt: OnboardRequested,
	}
}

func TestNewStudent(t *testing.T) {
	s, err := NewStudent(validParams())
	require.NoError(t, err)

	assert.Equal(t, "ana.souza@example.com", s.Email)
	assert.Equal(t, "5511988887777", s.Phone)
	assert.Equal(t, StatusOnboarding, s.Status)
	assert.True(t, s.WantsCard())
	assert.False(t, s.IsDeleted())
}

func TestNewStudent_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*NewStudentParams)
	}{
		{"missing id", func(p *NewStudentParams) { p.ID = "" }},
		{"missing org", func(p *NewStudentParams) { p.OrgID = "" }},
		{"blank name", func(p *NewStudentParams) { p.Name = "   " }},
		{"bad email", func(p *NewStudentParams) { p.Email = "not-an-email" }},
		{"bad status", func(p *NewStudentParams) { p.Status = "archived" }},
		{"bad onboard option", func(p *NewStudentParams) { p.OnboardOpt = "talvez" }},
		{"enviado as input", func(p *NewStudentParams) { p.OnboardOpt = OnboardDone }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(&p)
			_, err := NewStudent(p)
			assert.Error(t, err)
		})
	}
}

func TestNewStudent_DefaultsToSkip(t *testing.T) {
	p := validParams()
	p.OnboardOpt = ""

	s, err := NewStudent(p)
	require.NoError(t, err)
	assert.Equal(t, OnboardSkip, s.OnboardOpt)
	assert.False(t, s.WantsCard())
}

func TestMarkOnboarded_Idempotent(t *testing.T) {
	s, err := NewStudent(validParams())
	require.NoError(t, err)

	require.NoError(t, s.MarkOnboarded())
	assert.Equal(t, OnboardDone, s.OnboardOpt)

	// Second call is a no-op, not an error.
	require.NoError(t, s.MarkOnboarded())
	assert.Equal(t, OnboardDone, s.OnboardOpt)
}

func TestNewStudent_ErrorKinds(t *testing.T) {
	p := validParams()
	p.Email = "broken"

	_, err := NewStudent(p)
	assert.ErrorIs(t, err, shared.ErrValidation)
}
