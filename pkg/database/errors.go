package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"

	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/lib/pq"
)

// IsUnavailable reports whether err means the data store could not be
// reached or is not accepting work yet. Query and constraint errors are not
// availability failures.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		// class 08: connection exception, 57P03: cannot_connect_now,
		// 53300: too_many_connections
		return strings.HasPrefix(code, "08") || code == "57P03" || code == "53300"
	}

	var migErr *migratedb.Error
	if errors.As(err, &migErr) && migErr.OrigErr != nil {
		return IsUnavailable(migErr.OrigErr)
	}

	return false
}
