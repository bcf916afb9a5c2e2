package reconciliation

import "github.com/Aidin1998/instapay/pkg/errors"

// Error kinds surfaced by the engine. Match with errors.Is.
var (
	ErrValidation        = errors.Validation
	ErrNotFound          = errors.NotFound
	ErrDuplicatePayment  = errors.DuplicatePayment
	ErrGatewaySubmission = errors.GatewaySubmission
	ErrGatewayTimeout    = errors.GatewayTimeout
	ErrParse             = errors.Parse
	ErrLedgerPosting     = errors.LedgerPosting
	ErrInvalidTransition = errors.InvalidTransition
)
