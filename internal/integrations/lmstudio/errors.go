package lmstudio

import "fmt"

// ConnectionError reports an unreachable backend, a timed out request or a
// non-2xx response. StatusCode is zero when no response was received.
type ConnectionError struct {
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *ConnectionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("lmstudio: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
	}
	return fmt.Sprintf("lmstudio: cannot reach %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) HTTPStatusCode() int {
	return e.StatusCode
}

// ProtocolError reports a response body that does not have the
// chat-completion shape.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return "lmstudio: protocol error: " + e.Reason
	}
	return fmt.Sprintf("lmstudio: protocol error: %s: %v", e.Reason, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }
