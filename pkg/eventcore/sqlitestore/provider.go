package sqlitestore

import (
	"database/sql"

	"eventcore/pkg/eventcore"
)

// New bundles the three providers over one already-opened *sql.DB (see Open).
func New(db *sql.DB) eventcore.Providers {
	return eventcore.Providers{
		Events:    NewEventsStore(db),
		Contexts:  NewContextsStore(db),
		Snapshots: NewSnapshotsStore(db),
	}
}
