// Package notify delivers progress and error notifications to the
// interactive front end.
package notify

// Channels the front end subscribes to.
const (
	ChannelBackendStatus = "backend:status"
	ChannelError         = "backend:error"
)

// Notifier is the fire-and-forget UI surface. Payloads are small
// JSON-serializable values; delivery failures are swallowed.
type Notifier interface {
	Notify(channel string, payload any)
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Notify(string, any) {}

// ErrorPayload is what the error channel carries: a category plus the
// human-readable guidance, never raw error text.
type ErrorPayload struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// StatusPayload announces the currently active backend.
type StatusPayload struct {
	Backend     string `json:"backend"`
	DisplayName string `json:"display_name"`
	Fallback    string `json:"fallback_reason,omitempty"`
}
