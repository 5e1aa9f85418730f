package fleet

import "strings"

// RemoteError is a FAIL reply from an agent.
type RemoteError struct {
	Host    string
	Header  string
	Message string
}

func (e *RemoteError) Error() string {
	return strings.TrimSpace(e.Header) + " " + e.Message
}
