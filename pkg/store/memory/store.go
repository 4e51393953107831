// Package memory implements store.Store on top of go-memdb.
package memory

import (
	"fmt"

	"github.com/hashicorp/go-memdb"

	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/logger"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/models"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/notify"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/store"
)

// Store is an in-memory store.Store. Stored objects are never mutated in
// place; every write inserts a fresh copy.
type Store struct {
	db      *memdb.MemDB
	logger  logger.Logger
	changes *notify.Bus[store.Change]
}

var _ store.Store = (*Store)(nil)

// New returns a new in-memory store.
func New(log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Discard()
	}

	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("new memdb: %w", err)
	}

	return &Store{
		db:      db,
		logger:  log,
		changes: notify.NewBus[store.Change]("store", log, nil),
	}, nil
}

// Watch implements store.Store.
func (s *Store) Watch() (<-chan store.Change, func()) {
	return s.changes.Subscribe()
}

// Close closes every watcher channel.
func (s *Store) Close() {
	s.changes.Close()
}

// UpsertIssue implements store.Store.
func (s *Store) UpsertIssue(issue models.Issue) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(tblIssues, copyIssue(&issue)); err != nil {
		return fmt.Errorf("upsert issue %s: %w", issue.ID, err)
	}
	txn.Commit()

	s.changes.Publish(store.Change{Kind: store.ChangeUpsert, Entity: store.EntityIssue, ID: issue.ID, ProjectID: issue.ProjectID})
	return nil
}

// MergeIssue implements store.Store.
func (s *Store) MergeIssue(id string, changes map[string]any) (models.Issue, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblIssues, idxID, id)
	if err != nil {
		return models.Issue{}, fmt.Errorf("find issue by id: %w", err)
	}
	if raw == nil {
		return models.Issue{}, fmt.Errorf("issue %s: %w", id, store.ErrNotFound)
	}

	merged, err := store.ApplyChanges(*copyIssue(raw.(*models.Issue)), changes)
	if err != nil {
		return models.Issue{}, err
	}

	if err := txn.Insert(tblIssues, &merged); err != nil {
		return models.Issue{}, fmt.Errorf("update issue %s: %w", id, err)
	}
	txn.Commit()

	s.changes.Publish(store.Change{Kind: store.ChangeMerge, Entity: store.EntityIssue, ID: id, ProjectID: merged.ProjectID})
	return *copyIssue(&merged), nil
}

// DeleteIssue implements store.Store. Deleting a missing issue is not an error.
func (s *Store) DeleteIssue(id string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblIssues, idxID, id)
	if err != nil {
		return fmt.Errorf("find issue by id: %w", err)
	}
	if raw == nil {
		return nil
	}

	issue := raw.(*models.Issue)
	if err := txn.Delete(tblIssues, issue); err != nil {
		return fmt.Errorf("delete issue %s: %w", id, err)
	}
	txn.Commit()

	s.changes.Publish(store.Change{Kind: store.ChangeDelete, Entity: store.EntityIssue, ID: id, ProjectID: issue.ProjectID})
	return nil
}

// Issue implements store.Store.
func (s *Store) Issue(id string) (models.Issue, bool) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblIssues, idxID, id)
	if err != nil || raw == nil {
		return models.Issue{}, false
	}
	return *copyIssue(raw.(*models.Issue)), true
}

// Issues implements store.Store.
func (s *Store) Issues(projectID string) []models.Issue {
	txn := s.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(tblIssues, idxProjectID, projectID)
	if err != nil {
		s.logger.Error("failed to list issues", "project_id", projectID, "error", err)
		return nil
	}

	var issues []models.Issue
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		issues = append(issues, *copyIssue(raw.(*models.Issue)))
	}
	return issues
}

// UpsertSprint implements store.Store.
func (s *Store) UpsertSprint(sprint models.Sprint) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	stored := sprint
	if err := txn.Insert(tblSprints, &stored); err != nil {
		return fmt.Errorf("upsert sprint %s: %w", sprint.ID, err)
	}
	txn.Commit()

	s.changes.Publish(store.Change{Kind: store.ChangeUpsert, Entity: store.EntitySprint, ID: sprint.ID, ProjectID: sprint.ProjectID})
	return nil
}

// DeleteSprint implements store.Store. Deleting a missing sprint is not an error.
func (s *Store) DeleteSprint(id string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblSprints, idxID, id)
	if err != nil {
		return fmt.Errorf("find sprint by id: %w", err)
	}
	if raw == nil {
		return nil
	}

	sprint := raw.(*models.Sprint)
	if err := txn.Delete(tblSprints, sprint); err != nil {
		return fmt.Errorf("delete sprint %s: %w", id, err)
	}
	txn.Commit()

	s.changes.Publish(store.Change{Kind: store.ChangeDelete, Entity: store.EntitySprint, ID: id, ProjectID: sprint.ProjectID})
	return nil
}

// Sprint implements store.Store.
func (s *Store) Sprint(id string) (models.Sprint, bool) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblSprints, idxID, id)
	if err != nil || raw == nil {
		return models.Sprint{}, false
	}
	return *raw.(*models.Sprint), true
}

// Sprints implements store.Store.
func (s *Store) Sprints(projectID string) []models.Sprint {
	txn := s.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(tblSprints, idxProjectID, projectID)
	if err != nil {
		s.logger.Error("failed to list sprints", "project_id", projectID, "error", err)
		return nil
	}

	var sprints []models.Sprint
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		sprints = append(sprints, *raw.(*models.Sprint))
	}
	return sprints
}

// PurgeProject implements store.Store.
func (s *Store) PurgeProject(projectID string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	issues, err := txn.DeleteAll(tblIssues, idxProjectID, projectID)
	if err != nil {
		return fmt.Errorf("purge issues of %s: %w", projectID, err)
	}
	sprints, err := txn.DeleteAll(tblSprints, idxProjectID, projectID)
	if err != nil {
		return fmt.Errorf("purge sprints of %s: %w", projectID, err)
	}
	txn.Commit()

	s.logger.Debug("purged project", "project_id", projectID, "issues", issues, "sprints", sprints)
	s.changes.Publish(store.Change{Kind: store.ChangePurge, Entity: store.EntityProject, ID: projectID, ProjectID: projectID})
	return nil
}

func copyIssue(issue *models.Issue) *models.Issue {
	c := *issue
	c.Labels = append([]string(nil), issue.Labels...)
	return &c
}
