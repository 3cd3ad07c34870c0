package nats

import (
	"time"

	"github.com/brojonat/solxfer/service/transfer"
)

// TransferEvent represents one phase transition of a transfer submission.
// This is published to the subject "transfers.{phase}" in JetStream.
type TransferEvent struct {
	Phase  string `json:"phase"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
	Kind   string `json:"kind,omitempty"` // failure kind, set only for failed transfers
	Detail string `json:"detail,omitempty"`

	// Form fields as entered
	Recipient string `json:"recipient,omitempty"`
	Amount    string `json:"amount,omitempty"`

	// Validated plan; empty until validation passed
	FromAddress string `json:"from_address,omitempty"`
	ToAddress   string `json:"to_address,omitempty"`
	Lamports    uint64 `json:"lamports,omitempty"`
	SOL         string `json:"sol,omitempty"`

	Signature   string    `json:"signature,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// Subject returns the subject the event is published to.
func (e *TransferEvent) Subject() string {
	return SubjectPrefix + e.Phase
}

// FromTransferEvent converts a form transition to a TransferEvent for publishing.
func FromTransferEvent(e transfer.Event) *TransferEvent {
	event := &TransferEvent{
		Phase:       e.State.Phase.String(),
		Status:      e.State.Status,
		Error:       e.State.Error,
		Recipient:   e.State.Recipient,
		Amount:      e.State.Amount,
		Signature:   e.State.Signature,
		PublishedAt: time.Now().UTC(),
	}

	if e.Plan.Lamports > 0 {
		event.FromAddress = e.Plan.From.String()
		event.ToAddress = e.Plan.To.String()
		event.Lamports = e.Plan.Lamports
		event.SOL = transfer.FormatLamports(e.Plan.Lamports)
	}
	if e.Err != nil {
		event.Kind = string(transfer.KindOf(e.Err))
		event.Detail = e.Err.Error()
	}

	return event
}
