package postgres

import (
	"errors"

	"github.com/lib/pq"
)

// pq unique_violation SQLSTATE, used to translate a duplicate-key
// write into apperr.Conflict instead of a generic internal error.
const pqUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}
