// Package store defines the mutation surface of the shared entity store that
// the sync engine keeps consistent with server pushes.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/models"
)

// ErrNotFound is returned when a record to merge into does not exist.
var ErrNotFound = errors.New("not found")

// Store is keyed by entity id, with project id as a secondary key.
// Every mutation is idempotent.
type Store interface {
	UpsertIssue(issue models.Issue) error
	// MergeIssue applies changed fields, keyed by wire name, onto an
	// existing issue and returns the result.
	MergeIssue(id string, changes map[string]any) (models.Issue, error)
	DeleteIssue(id string) error
	Issue(id string) (models.Issue, bool)
	Issues(projectID string) []models.Issue

	UpsertSprint(sprint models.Sprint) error
	DeleteSprint(id string) error
	Sprint(id string) (models.Sprint, bool)
	Sprints(projectID string) []models.Sprint

	// PurgeProject removes every issue and sprint of the project.
	PurgeProject(projectID string) error

	// Watch subscribes to applied mutations.
	Watch() (<-chan Change, func())
}

// ChangeKind names a store mutation.
type ChangeKind string

const (
	ChangeUpsert ChangeKind = "upsert"
	ChangeMerge  ChangeKind = "merge"
	ChangeDelete ChangeKind = "delete"
	ChangePurge  ChangeKind = "purge"
)

// EntityKind names a record type.
type EntityKind string

const (
	EntityIssue   EntityKind = "issue"
	EntitySprint  EntityKind = "sprint"
	EntityProject EntityKind = "project"
)

// Change describes one applied mutation.
type Change struct {
	Kind      ChangeKind
	Entity    EntityKind
	ID        string
	ProjectID string
}

// immutableFields cannot be changed by a merge.
var immutableFields = map[string]struct{}{
	"id": {},
}

// ApplyChanges decodes changes onto a copy of issue. Keys are wire names;
// unknown keys are ignored and a null value resets the field.
func ApplyChanges(issue models.Issue, changes map[string]any) (models.Issue, error) {
	filtered := make(map[string]any, len(changes))
	for k, v := range changes {
		if _, ok := immutableFields[k]; ok {
			continue
		}
		filtered[k] = v
	}

	merged := issue
	merged.Labels = append([]string(nil), issue.Labels...)

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		),
		ZeroFields: true,
		Result:     &merged,
	})
	if err != nil {
		return issue, fmt.Errorf("create decoder: %w", err)
	}

	if err := decoder.Decode(filtered); err != nil {
		return issue, fmt.Errorf("merge issue %s: %w", issue.ID, err)
	}

	return merged, nil
}
