// Package sheet provides retrying access to a sparse, 1-based table.
package sheet

import (
	"errors"
	"fmt"
)

// Cell addresses one value of the table. Rows and columns start at 1.
type Cell struct {
	Row   int
	Col   int
	Value string
}

// Backend errors wrapping these sentinels are retried by the Client.
var (
	ErrTransient   = errors.New("transient backend failure")
	ErrRateLimited = errors.New("backend rate limit exceeded")
)

// BackingStoreError reports a primitive that failed permanently or ran out of retries.
type BackingStoreError struct {
	Op  string
	Err error
}

func (e *BackingStoreError) Error() string {
	return fmt.Sprintf("backing store %s failed: %v", e.Op, e.Err)
}

func (e *BackingStoreError) Unwrap() error { return e.Err }

// LedgerUnavailableError reports a store that stayed rate limited past the backoff ceiling.
type LedgerUnavailableError struct {
	Op  string
	Err error
}

func (e *LedgerUnavailableError) Error() string {
	return fmt.Sprintf("ledger unavailable during %s: %v", e.Op, e.Err)
}

func (e *LedgerUnavailableError) Unwrap() error { return e.Err }

func retryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrRateLimited)
}
