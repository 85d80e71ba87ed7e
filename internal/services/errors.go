package services

import "fmt"

// Kind discriminates service failures so transport layers can map them to
// whatever status codes they need; services never decide HTTP codes.
type Kind string

const (
	// KindSaveFailed marks a persistence failure; the transaction rolled back.
	KindSaveFailed Kind = "save_failed"
	// KindLedgerRejected marks a client-error class ledger response.
	KindLedgerRejected Kind = "ledger_rejected"
	// KindLedgerUnavailable marks a server-error class ledger response or a
	// connection failure.
	KindLedgerUnavailable Kind = "ledger_unavailable"
)

// ServiceError is a typed failure raised by the services in this package.
type ServiceError struct {
	Kind Kind
	Err  error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError wraps err with a failure kind.
func NewServiceError(kind Kind, err error) *ServiceError {
	return &ServiceError{Kind: kind, Err: err}
}
