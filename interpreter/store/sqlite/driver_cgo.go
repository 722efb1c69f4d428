//go:build cgo_sqlite

package sqlite

import (
	_ "github.com/mattn/go-sqlite3"
)

const driverName = "sqlite3"

// dsn builds a mattn/go-sqlite3 DSN: each pragma becomes a _key=value
// query parameter.
func dsn(path string, pragmas []pragma) string {
	s := path
	for i, p := range pragmas {
		s += querySep(i) + "_" + p.key + "=" + p.value
	}
	return s
}
