package memory

import "github.com/hashicorp/go-memdb"

var (
	tblIssues  = "issues"
	tblSprints = "sprints"
)

const (
	idxID        = "id"
	idxProjectID = "project_id"
)

var schema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		tblIssues: {
			Name: tblIssues,
			Indexes: map[string]*memdb.IndexSchema{
				idxID: {
					Name:    idxID,
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				idxProjectID: {
					Name:         idxProjectID,
					AllowMissing: true,
					Indexer:      &memdb.StringFieldIndex{Field: "ProjectID"},
				},
			},
		},
		tblSprints: {
			Name: tblSprints,
			Indexes: map[string]*memdb.IndexSchema{
				idxID: {
					Name:    idxID,
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				idxProjectID: {
					Name:         idxProjectID,
					AllowMissing: true,
					Indexer:      &memdb.StringFieldIndex{Field: "ProjectID"},
				},
			},
		},
	},
}
