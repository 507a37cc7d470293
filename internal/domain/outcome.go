package domain

// OutcomeStatus is the result of one delivery attempt.
type OutcomeStatus string

const (
	OutcomeSent   OutcomeStatus = "sent"
	OutcomeFailed OutcomeStatus = "failed"
)

// SendOutcome records what happened to one recipient of a chunk.
type SendOutcome struct {
	Email     string        `json:"email"`
	Status    OutcomeStatus `json:"status"`
	MessageID string        `json:"message_id,omitempty"`
	Reason    string        `json:"reason,omitempty"`
}

// Failed reports whether the outcome is a failure.
func (o SendOutcome) Failed() bool { return o.Status != OutcomeSent }
