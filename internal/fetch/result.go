// Package fetch retrieves page bytes over HTTP and reports the outcome as an
// explicit Result with a closed set of transport error kinds.
package fetch

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
	"time"
)

// ErrorKind classifies transport failures. ErrNone means the server answered.
type ErrorKind int

const (
	// ErrNone means the request completed, whatever the status code
	ErrNone ErrorKind = iota
	// ErrConnectionRefused means the host refused the TCP connection
	ErrConnectionRefused
	// ErrConnectionReset means the connection broke mid-request
	ErrConnectionReset
	// ErrDNSFailure means the host name could not be resolved
	ErrDNSFailure
	// ErrTimeout means the request exceeded its deadline
	ErrTimeout
	// ErrMaxRetriesExceeded means redirects or transport retries were exhausted
	ErrMaxRetriesExceeded
)

func (k ErrorKind) String() string {
	switch k {
	case ErrNone:
		return "none"
	case ErrConnectionRefused:
		return "connection_refused"
	case ErrConnectionReset:
		return "connection_reset"
	case ErrDNSFailure:
		return "dns_failure"
	case ErrTimeout:
		return "timeout"
	case ErrMaxRetriesExceeded:
		return "max_retries_exceeded"
	default:
		return "unknown"
	}
}

// Result is the outcome of a single fetch.
type Result struct {
	Status      int
	FinalURL    string // after following redirects
	Body        []byte // nil when Err is not ErrNone
	ContentType string
	Err         ErrorKind
	Cause       error // underlying error for logging, nil when Err is ErrNone

	TTFB     time.Duration // time to first byte
	Duration time.Duration // total download time
}

// errTooManyRedirects is returned by the redirect policy.
var errTooManyRedirects = errors.New("too many redirects")

// Classify maps a transport error to an ErrorKind.
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrNone
	}

	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, errTooManyRedirects):
		return ErrMaxRetriesExceeded
	case errors.As(err, &dnsErr):
		return ErrDNSFailure
	case errors.Is(err, syscall.ECONNREFUSED):
		return ErrConnectionRefused
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return ErrConnectionReset
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	if strings.Contains(err.Error(), "connection refused") {
		return ErrConnectionRefused
	}

	// any other transport failure is a broken connection from the crawler's point of view
	return ErrConnectionReset
}
