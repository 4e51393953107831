package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/models"
)

func TestApplyChanges(t *testing.T) {
	base := models.Issue{
		ID:          "i1",
		ProjectID:   "P1",
		Title:       "Login broken",
		Status:      "todo",
		AssigneeID:  "u1",
		StoryPoints: 3,
		Labels:      []string{"bug"},
	}

	t.Run("known fields by wire name", func(t *testing.T) {
		got, err := ApplyChanges(base, map[string]any{
			"title":       "Login fixed",
			"status":      "done",
			"storyPoints": float64(5),
			"labels":      []any{"bug", "auth"},
			"updatedAt":   "2024-03-01T10:00:00Z",
		})
		require.NoError(t, err)

		assert.Equal(t, "Login fixed", got.Title)
		assert.Equal(t, "done", got.Status)
		assert.Equal(t, 5, got.StoryPoints)
		assert.Equal(t, []string{"bug", "auth"}, got.Labels)
		assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), got.UpdatedAt.UTC())
		assert.Equal(t, "u1", got.AssigneeID)
	})

	t.Run("null resets the field", func(t *testing.T) {
		got, err := ApplyChanges(base, map[string]any{"assigneeId": nil})
		require.NoError(t, err)
		assert.Empty(t, got.AssigneeID)
		assert.Equal(t, "Login broken", got.Title)
	})

	t.Run("id and unknown keys are ignored", func(t *testing.T) {
		got, err := ApplyChanges(base, map[string]any{"id": "other", "color": "red"})
		require.NoError(t, err)
		assert.Equal(t, base, got)
	})

	t.Run("does not alias the input", func(t *testing.T) {
		_, err := ApplyChanges(base, map[string]any{"labels": []any{"x"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"bug"}, base.Labels)
	})

	t.Run("type mismatch", func(t *testing.T) {
		_, err := ApplyChanges(base, map[string]any{"storyPoints": "many"})
		assert.Error(t, err)
	})

	t.Run("idempotent", func(t *testing.T) {
		changes := map[string]any{"title": "Once", "status": "in_progress"}
		once, err := ApplyChanges(base, changes)
		require.NoError(t, err)
		twice, err := ApplyChanges(once, changes)
		require.NoError(t, err)
		assert.Equal(t, once, twice)
	})
}
