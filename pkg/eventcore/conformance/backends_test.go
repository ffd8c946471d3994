package conformance

import (
	"os"

	"eventcore/pkg/eventcore"
	"eventcore/pkg/eventcore/memstore"
	"eventcore/pkg/eventcore/sqlitestore"
)

var _ = describeEventStoreContract("memstore", func() (eventcore.Providers, func()) {
	return memstore.New(), nil
})

var _ = describeEventStoreContract("sqlitestore", func() (eventcore.Providers, func()) {
	f, err := os.CreateTemp("", "eventcore-conformance-*.db")
	if err != nil {
		panic(err)
	}
	path := f.Name()
	f.Close()
	os.Remove(path)

	db, err := sqlitestore.Open(path)
	if err != nil {
		panic(err)
	}

	return sqlitestore.New(db), func() {
		db.Close()
		os.Remove(path)
	}
})
