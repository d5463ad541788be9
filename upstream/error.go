package upstream

import "fmt"

// ErrorKind classifies fetch failures. Handlers map kinds to HTTP
// statuses; nothing else about a failure leaks past the fetcher.
type ErrorKind int

const (
	// Unavailable covers network errors, timeouts and 5xx responses
	// that survived all retries.
	Unavailable ErrorKind = iota

	// ClientError covers 4xx responses; these are never retried.
	ClientError

	// Malformed covers 2xx responses whose body isn't valid JSON.
	Malformed
)

// String returns the kind label used in logs and metrics.
func (k ErrorKind) String() string {
	switch k {
	case Unavailable:
		return "unavailable"
	case ClientError:
		return "client_error"
	case Malformed:
		return "malformed"
	default:
		return fmt.Sprintf("unknown kind %d", int(k))
	}
}

// Error is a classified fetch failure.
type Error struct {
	Kind ErrorKind

	// StatusCode is the last upstream status, zero when the request
	// never completed.
	StatusCode int

	// URL is the upstream URL without query args.
	URL string

	// Err is the root cause, nil for pure status failures.
	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("upstream %s: %q", e.Kind, e.URL)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s returned status %d", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}
