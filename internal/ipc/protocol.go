// Package ipc carries control commands between the aquavoice daemon and
// short-lived CLI invocations over a per-user unix socket. The wire format
// is one JSON request line answered by one JSON response line.
package ipc

// Request is a single daemon command: status, stop, or cancel.
type Request struct {
	Command string `json:"command"`
}

// Response reports command outcome plus the daemon's session state.
type Response struct {
	OK      bool   `json:"ok"`
	State   string `json:"state,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
