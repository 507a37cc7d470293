package bulksend

import "errors"

// Sentinel errors for the bulk send service layer.
var (
	ErrNotFound         = errors.New("job not found")
	ErrNoRecipients     = errors.New("no valid recipient emails found")
	ErrInvalidBatchSize = errors.New("batch size must be between 1 and 500")
	ErrJobBusy          = errors.New("job is locked by another step")
	ErrInvalidStep      = errors.New("invalid chunk index")
	ErrLeaseLost        = errors.New("job lock lost while sending")
)
