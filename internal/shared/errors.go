package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrIncorrectPassword indicates the re-authentication gate rejected the
	// supplied password. Pending edits are kept so the commit can be retried.
	ErrIncorrectPassword = errors.New("incorrect password")
	// ErrStoreUnavailable indicates a read or write against the ledger or
	// audit store failed. The previous in-memory state is retained and the
	// operation may be retried.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInvalidAmount indicates a rate amount that is negative or not finite.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrPartialAuditFailure indicates the ledger write succeeded but some
	// audit entries could not be appended. The ledger is authoritative and is
	// not rolled back for this reason alone.
	ErrPartialAuditFailure = errors.New("partial audit failure")
	// ErrEditState indicates an edit-session operation invoked outside the
	// state it is valid in.
	ErrEditState = errors.New("invalid edit session state")
	// ErrNoSelection indicates a bulk action with no cells selected.
	ErrNoSelection = errors.New("no cells selected")
	// ErrDuplicateMember indicates the member already exists in the period.
	ErrDuplicateMember = errors.New("member already exists")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
