package stores

import (
	"database/sql"
	"errors"
)

// IsNotFoundError reports whether err indicates a missing row.
func IsNotFoundError(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
