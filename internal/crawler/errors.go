package crawler

import (
	"errors"

	"github.com/masahif/webcorpus/internal/fetch"
)

// ErrFatalStartup wraps every error that aborts a crawl before any worker starts:
// a rejected seed, an unusable scope configuration or unreadable persisted state.
var ErrFatalStartup = errors.New("fatal startup error")

// Classify maps a fetch result to how the worker handles it.
func Classify(res fetch.Result) Class {
	switch {
	case res.Err != fetch.ErrNone:
		return TransientFetchError
	case res.Status != 200:
		return FetchStatusError
	default:
		return Success
	}
}
