//go:build !cgo_sqlite

package sqlite

import (
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// dsn builds a modernc.org/sqlite DSN: each pragma becomes a
// _pragma=key(value) query parameter.
func dsn(path string, pragmas []pragma) string {
	s := path
	for i, p := range pragmas {
		s += querySep(i) + "_pragma=" + p.key + "(" + p.value + ")"
	}
	return s
}
