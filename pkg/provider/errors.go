package provider

import "fmt"

// ErrorKind classifies a provider failure.
type ErrorKind string

const (
	KindNetwork       ErrorKind = "network"
	KindHTTPClient    ErrorKind = "http_client"
	KindHTTPServer    ErrorKind = "http_server"
	KindTimeout       ErrorKind = "timeout"
	KindMalformed     ErrorKind = "malformed"
	KindQuotaExceeded ErrorKind = "quota_exceeded"
)

// Error is a terminal or per-attempt provider failure.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("provider %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Retriable reports whether another attempt may succeed.
func (e *Error) Retriable() bool {
	switch e.Kind {
	case KindNetwork, KindHTTPServer, KindTimeout:
		return true
	}
	return false
}
