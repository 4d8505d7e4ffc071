package errors

import (
	stderrs "errors"
	"strings"
)

// primary result codes from sqlite3.h; extended codes keep these in the low byte
const (
	sqliteBusy   = 5
	sqliteLocked = 6
)

// sqliteCoder matches *sqlite.Error from modernc.org/sqlite without importing the driver
type sqliteCoder interface {
	error
	Code() int
}

// IsSQLiteBusy reports SQLITE_BUSY / SQLITE_LOCKED, which clear once the other writer commits
func IsSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var ce sqliteCoder
	if stderrs.As(err, &ce) {
		switch ce.Code() & 0xff {
		case sqliteBusy, sqliteLocked:
			return true
		}
		return false
	}
	s := strings.ToLower(Root(err).Error())
	return strings.Contains(s, "database is locked") || strings.Contains(s, "sqlite_busy")
}
