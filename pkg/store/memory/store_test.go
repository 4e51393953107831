package memory

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/logger"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/models"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(logger.New(slog.NewTextHandler(os.Stdout, nil)))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestIssues(t *testing.T) {
	s := newTestStore(t)
	issue := models.Issue{ID: "i1", Key: "PROJ-1", ProjectID: "P1", Title: "Login broken"}

	t.Run("upsert is idempotent", func(t *testing.T) {
		require.NoError(t, s.UpsertIssue(issue))
		require.NoError(t, s.UpsertIssue(issue))

		got, ok := s.Issue("i1")
		require.True(t, ok)
		assert.Equal(t, issue, got)
		assert.Len(t, s.Issues("P1"), 1)
	})

	t.Run("merge applies changes", func(t *testing.T) {
		merged, err := s.MergeIssue("i1", map[string]any{"title": "Login fixed"})
		require.NoError(t, err)
		assert.Equal(t, "Login fixed", merged.Title)

		again, err := s.MergeIssue("i1", map[string]any{"title": "Login fixed"})
		require.NoError(t, err)
		assert.Equal(t, merged, again)

		got, _ := s.Issue("i1")
		assert.Equal(t, merged, got)
	})

	t.Run("merge into missing issue", func(t *testing.T) {
		_, err := s.MergeIssue("nope", map[string]any{"title": "x"})
		assert.True(t, errors.Is(err, store.ErrNotFound))
	})

	t.Run("returned values are copies", func(t *testing.T) {
		require.NoError(t, s.UpsertIssue(models.Issue{ID: "i2", ProjectID: "P1", Labels: []string{"a"}}))
		got, _ := s.Issue("i2")
		got.Labels[0] = "mutated"

		again, _ := s.Issue("i2")
		assert.Equal(t, []string{"a"}, again.Labels)
	})

	t.Run("delete is unconditional and idempotent", func(t *testing.T) {
		require.NoError(t, s.UpsertIssue(models.Issue{ID: "abc123", ProjectID: "P9"}))
		require.NoError(t, s.DeleteIssue("abc123"))
		require.NoError(t, s.DeleteIssue("abc123"))

		_, ok := s.Issue("abc123")
		assert.False(t, ok)
	})
}

func TestSprints(t *testing.T) {
	s := newTestStore(t)

	sprint := models.Sprint{ID: "s1", ProjectID: "P1", Name: "Sprint 1"}
	require.NoError(t, s.UpsertSprint(sprint))
	sprint.Goal = "Ship login"
	require.NoError(t, s.UpsertSprint(sprint))

	got, ok := s.Sprint("s1")
	require.True(t, ok)
	assert.Equal(t, "Ship login", got.Goal)
	assert.Len(t, s.Sprints("P1"), 1)

	require.NoError(t, s.DeleteSprint("s1"))
	require.NoError(t, s.DeleteSprint("s1"))
	assert.Empty(t, s.Sprints("P1"))
}

func TestPurgeProject(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpsertIssue(models.Issue{ID: "a", ProjectID: "P1"}))
	require.NoError(t, s.UpsertIssue(models.Issue{ID: "b", ProjectID: "P1"}))
	require.NoError(t, s.UpsertIssue(models.Issue{ID: "c", ProjectID: "P2"}))
	require.NoError(t, s.UpsertSprint(models.Sprint{ID: "s", ProjectID: "P1"}))

	require.NoError(t, s.PurgeProject("P1"))

	assert.Empty(t, s.Issues("P1"))
	assert.Empty(t, s.Sprints("P1"))
	assert.Len(t, s.Issues("P2"), 1)
}

func TestWatch(t *testing.T) {
	s := newTestStore(t)
	changes, cancel := s.Watch()
	defer cancel()

	require.NoError(t, s.UpsertIssue(models.Issue{ID: "a", ProjectID: "P1"}))
	require.NoError(t, s.DeleteIssue("a"))
	require.NoError(t, s.DeleteIssue("a"))

	assert.Equal(t, store.Change{Kind: store.ChangeUpsert, Entity: store.EntityIssue, ID: "a", ProjectID: "P1"}, <-changes)
	assert.Equal(t, store.Change{Kind: store.ChangeDelete, Entity: store.EntityIssue, ID: "a", ProjectID: "P1"}, <-changes)
	// Deleting a missing record publishes nothing.
	assert.Empty(t, changes)
}
