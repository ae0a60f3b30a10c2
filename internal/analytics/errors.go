package analytics

import "errors"

var (
	// ErrInvalidRange indicates the requested period cannot be evaluated.
	ErrInvalidRange = errors.New("analytics: invalid date range")
	// ErrDataUnavailable marks a sub-ledger that is not provisioned in this deployment.
	ErrDataUnavailable = errors.New("analytics: ledger data unavailable")
	// ErrDebtorNotFound occurs when a receivable references a debtor that no longer exists.
	ErrDebtorNotFound = errors.New("analytics: debtor not found")
	// ErrRepositoryMissing occurs when the engine is built without a record repository.
	ErrRepositoryMissing = errors.New("analytics: repository not configured")
)
