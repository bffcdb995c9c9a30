package audit

import (
	"time"

	"github.com/google/uuid"
)

// Status is the payment status recorded for one changed cell.
type Status string

const (
	// StatusPaid marks a cell committed as paid.
	StatusPaid Status = "Paid"
	// StatusUnpaid marks a cell committed as unpaid.
	StatusUnpaid Status = "Unpaid"
)

// Entry is one immutable audit record: a single slot change that was part of
// a committed change-set. Entries are never mutated or deleted by the ledger;
// only the retention sweep trims old ones.
type Entry struct {
	ID      int64     `json:"id"`
	BatchID uuid.UUID `json:"batch_id"`
	Admin   string    `json:"admin"`
	Member  string    `json:"member"`
	Slot    string    `json:"slot"`
	Status  Status    `json:"status"`
	Period  string    `json:"period"`
	At      time.Time `json:"at"`
}
