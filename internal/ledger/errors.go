package ledger

import (
	"errors"
	"fmt"
)

// Transfer error kinds. Callers discriminate with errors.Is so a
// precondition failure is distinguishable from a write conflict or a
// timeout.
var (
	// ErrAccountNotFound means the user or pharmacy has no balance row.
	// Nothing was written.
	ErrAccountNotFound = errors.New("balance account not found")

	// ErrZeroAmount rejects a transfer of zero. Positive amounts are
	// purchases, negative amounts are refunds.
	ErrZeroAmount = errors.New("transfer amount must be non-zero")

	// ErrConflict means a concurrent writer invalidated the balance
	// version and the whole unit was rolled back.
	ErrConflict = errors.New("transfer write conflict")

	// ErrTimeout means the atomic unit did not finish within the
	// configured bound; the transaction was rolled back.
	ErrTimeout = errors.New("transfer timed out")
)

// IntegrityError reports a history row referencing an entity that no
// longer resolves. The aggregator surfaces it instead of silently
// dropping the row.
type IntegrityError struct {
	HistoryID uint64
	Entity    string // "user", "pharmacy" or "mask"
	RefID     uint64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("transaction history %d references missing %s %d", e.HistoryID, e.Entity, e.RefID)
}
