package intent

import "fmt"

// ExtractionError reports model output with no recoverable JSON object.
type ExtractionError struct {
	Reason string
}

func (e *ExtractionError) Error() string {
	return "intent: extract: " + e.Reason
}

// ParseError reports a JSON island that is not valid JSON.
type ParseError struct {
	Island string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("intent: parse %q: %v", truncate(e.Island, 120), e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
