package events

import "errors"

// ValidationError marks a malformed or unknown inbound event. The event is
// dropped and the connection stays open.
type ValidationError struct {
	Reason string
}

func NewValidationError(reason string) *ValidationError {
	return &ValidationError{Reason: reason}
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Reason
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Ack is the structured per-event response returned to the originating
// client. Permission denials must carry an explicit message so the UI can
// surface "view-only access" instead of failing silently.
type Ack struct {
	Success          bool   `json:"success"`
	Error            string `json:"error,omitempty"`
	PermissionDenied bool   `json:"permission_denied,omitempty"`
}

// DeniedAck is the refusal shape for role-gated actions.
func DeniedAck() Ack {
	return Ack{Success: false, Error: "view-only access", PermissionDenied: true}
}

func InvalidAck(reason string) Ack {
	return Ack{Success: false, Error: reason}
}
