package transfer

import "fmt"

// Phase is the visible stage of the transfer form.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseValidating
	PhaseSubmitting
	PhaseConfirming
	PhaseSuccess
	PhaseFailed
)

var phaseNames = [...]string{"idle", "validating", "submitting", "confirming", "success", "failed"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// MarshalText renders the phase by name in JSON and templates.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a phase name.
func (p *Phase) UnmarshalText(text []byte) error {
	for i, name := range phaseNames {
		if name == string(text) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", string(text))
}

// InFlight reports whether a submission is running.
func (p Phase) InFlight() bool {
	return p == PhaseValidating || p == PhaseSubmitting || p == PhaseConfirming
}

// Terminal reports whether the phase is the outcome of a submission.
func (p Phase) Terminal() bool {
	return p == PhaseSuccess || p == PhaseFailed
}

// Status lines shown while a submission runs and after it succeeds.
const (
	StatusProcessing = "Processing..."
	StatusSubmitting = "Waiting for wallet approval..."
	StatusConfirming = "Confirming transaction..."
	StatusSuccess    = "Transfer successful!"
)

// State is the form's visible state. Status and Error are never both set.
// Transitions return a new value and leave the receiver untouched.
type State struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Status    string `json:"status,omitempty"`
	Error     string `json:"error,omitempty"`
	Phase     Phase  `json:"phase"`
	Signature string `json:"signature,omitempty"`
}

// WithRecipient records an edit of the recipient field.
func (s State) WithRecipient(recipient string) State {
	s.Recipient = recipient
	return s.edited()
}

// WithAmount records an edit of the amount field.
func (s State) WithAmount(amount string) State {
	s.Amount = amount
	return s.edited()
}

func (s State) edited() State {
	if s.Phase.Terminal() {
		s.Phase = PhaseIdle
	}
	return s
}

// Begin starts a submission attempt, clearing the previous outcome.
func (s State) Begin() State {
	s.Phase = PhaseValidating
	s.Status = StatusProcessing
	s.Error = ""
	s.Signature = ""
	return s
}

// Advance moves an in-flight submission to the next phase.
func (s State) Advance(p Phase) State {
	s.Phase = p
	s.Error = ""
	switch p {
	case PhaseValidating:
		s.Status = StatusProcessing
	case PhaseSubmitting:
		s.Status = StatusSubmitting
	case PhaseConfirming:
		s.Status = StatusConfirming
	}
	return s
}

// Succeed records a confirmed transfer and clears the input fields.
func (s State) Succeed(signature string) State {
	s.Phase = PhaseSuccess
	s.Status = StatusSuccess
	s.Error = ""
	s.Recipient = ""
	s.Amount = ""
	s.Signature = signature
	return s
}

// Fail records a failed attempt. The error line carries only the message for
// the failure kind; the cause is left to logs and events. Input fields are
// kept so the user can retry.
func (s State) Fail(err error) State {
	s.Phase = PhaseFailed
	s.Status = ""
	s.Error = KindOf(err).Message()
	return s
}

// CanSubmit reports whether the submit control should be enabled.
func (s State) CanSubmit(connected bool) bool {
	return connected && !s.Phase.InFlight() && s.Recipient != "" && s.Amount != ""
}
