package trainer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTrainer(t *testing.T) {
	tr, err := NewTrainer("t-1", "org-1", "Carla Lima", "Carla@Example.com", "s3cret-pass")
	require.NoError(t, err)

	assert.Equal(t, "carla@example.com", tr.Email)
	assert.NotEqual(t, "s3cret-pass", tr.PasswordHash)
	assert.True(t, tr.CheckPassword("s3cret-pass"))
	assert.False(t, tr.CheckPassword("wrong"))
}

func TestNewTrainer_Invalid(t *testing.T) {
	tests := []struct {
		name                             string
		id, orgID, trName, email, secret string
	}{
		{"missing id", "", "org", "Carla", "c@example.com", "s3cret-pass"},
		{"missing org", "t-1", "", "Carla", "c@example.com", "s3cret-pass"},
		{"blank name", "t-1", "org", "  ", "c@example.com", "s3cret-pass"},
		{"bad email", "t-1", "org", "Carla", "nope", "s3cret-pass"},
		{"short password", "t-1", "org", "Carla", "c@example.com", "short"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTrainer(tt.id, tt.orgID, tt.trName, tt.email, tt.secret)
			assert.Error(t, err)
		})
	}
}

func TestOrgStudentLimit(t *testing.T) {
	o, err := NewOrg("org-1", "Studio Fit")
	require.NoError(t, err)

	assert.Equal(t, PlanFree, o.Plan)
	assert.True(t, o.WithinStudentLimit(0))
	assert.True(t, o.WithinStudentLimit(24))
	assert.False(t, o.WithinStudentLimit(25))

	o.Plan = PlanPro
	assert.True(t, o.WithinStudentLimit(10_000))
}
