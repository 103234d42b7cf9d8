package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuizAnswers_CanonicalFields(t *testing.T) {
	raw := []byte(`{
		"goals": ["strength", "mobility"],
		"experience_level": "intermediate",
		"sessions_per_week": 3,
		"preferred_time": "mornings",
		"budget_range": "50-80",
		"location": "Berlin"
	}`)

	q, err := ParseQuizAnswers(raw)
	require.NoError(t, err)

	prefs := q.Preferences()
	assert.Equal(t, []string{"strength", "mobility"}, prefs.Goals)
	assert.Equal(t, "intermediate", prefs.ExperienceLevel)
	assert.Equal(t, 3, prefs.SessionsPerWeek)
	assert.Equal(t, "mornings", prefs.PreferredTime)
	assert.Equal(t, "50-80", prefs.BudgetRange)
	assert.Equal(t, "Berlin", prefs.PreferredLocation)
}

func TestParseQuizAnswers_LegacyAliases(t *testing.T) {
	raw := []byte(`{
		"training_goals": ["weight_loss"],
		"experience": "beginner",
		"frequency": 2,
		"budget": "under-50"
	}`)

	q, err := ParseQuizAnswers(raw)
	require.NoError(t, err)

	prefs := q.Preferences()
	assert.Equal(t, []string{"weight_loss"}, prefs.Goals)
	assert.Equal(t, "beginner", prefs.ExperienceLevel)
	assert.Equal(t, 2, prefs.SessionsPerWeek)
	assert.Equal(t, "under-50", prefs.BudgetRange)
}

func TestParseQuizAnswers_CanonicalWinsOverLegacy(t *testing.T) {
	raw := []byte(`{
		"goals": ["endurance"],
		"training_goals": ["weight_loss"],
		"experience_level": "advanced",
		"experience": "beginner"
	}`)

	q, err := ParseQuizAnswers(raw)
	require.NoError(t, err)

	prefs := q.Preferences()
	assert.Equal(t, []string{"endurance"}, prefs.Goals)
	assert.Equal(t, "advanced", prefs.ExperienceLevel)
}

func TestParseQuizAnswers_NeutralDefaults(t *testing.T) {
	q, err := ParseQuizAnswers([]byte(`{}`))
	require.NoError(t, err)

	prefs := q.Preferences()
	assert.NotNil(t, prefs.Goals)
	assert.Empty(t, prefs.Goals)
	assert.Equal(t, "", prefs.ExperienceLevel)
	assert.Equal(t, 0, prefs.SessionsPerWeek)
}

func TestParseQuizAnswers_RejectsUnknownShape(t *testing.T) {
	_, err := ParseQuizAnswers([]byte(`{"favourite_colour": "red"}`))
	assert.Error(t, err)
}

func TestParseQuizAnswers_RejectsEmptyPayload(t *testing.T) {
	_, err := ParseQuizAnswers(nil)
	assert.Error(t, err)
}
