package scoredb

import "errors"

// Sentinel errors for the repository layer. They describe database state;
// the service layer decides whether they are domain failures.
var (
	// ErrNotFound indicates the requested score record does not exist.
	ErrNotFound = errors.New("score not found")

	// ErrNoRowsAffected indicates an UPDATE or DELETE affected zero rows.
	ErrNoRowsAffected = errors.New("no rows affected")
)
