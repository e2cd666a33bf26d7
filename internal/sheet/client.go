package sheet

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

// Backend is the remote sparse table. WriteCells must apply all cells or none.
type Backend interface {
	ReadAll(ctx context.Context) ([][]string, error)
	FindRow(ctx context.Context, col int, value string) (int, bool, error)
	FindCol(ctx context.Context, row int, value string) (int, bool, error)
	ReadCell(ctx context.Context, row, col int) (string, error)
	WriteCells(ctx context.Context, cells []Cell) error
	AppendRow(ctx context.Context, values []string) (int, error)
	AppendCol(ctx context.Context, header string) (int, error)
}

// Policy configures exponential backoff for each primitive.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
	MaxTries        uint
}

// DefaultPolicy starts at 1s and gives up after 80s, just past a one-minute rate-limit window.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: time.Second,
		MaxInterval:     64 * time.Second,
		MaxElapsed:      80 * time.Second,
	}
}

// Client wraps a Backend and retries every primitive independently.
type Client struct {
	backend Backend
	policy  Policy
	logger  zerolog.Logger
}

// NewClient returns a retrying client over backend.
func NewClient(backend Backend, policy Policy, logger zerolog.Logger) *Client {
	return &Client{
		backend: backend,
		policy:  policy,
		logger:  logger.With().Str("component", "sheet").Logger(),
	}
}

type lookup struct {
	index int
	found bool
}

// ReadAll returns the full table as rows of cells; ReadAll()[r-1][c-1] is cell (r, c).
func (c *Client) ReadAll(ctx context.Context) ([][]string, error) {
	return retry(ctx, c, "read-all", func() ([][]string, error) {
		return c.backend.ReadAll(ctx)
	})
}

// FindRow returns the first row whose cell in col equals value exactly.
func (c *Client) FindRow(ctx context.Context, col int, value string) (int, bool, error) {
	res, err := retry(ctx, c, "find-row", func() (lookup, error) {
		row, ok, err := c.backend.FindRow(ctx, col, value)
		return lookup{index: row, found: ok}, err
	})
	return res.index, res.found, err
}

// FindCol returns the first column whose cell in row equals value exactly.
func (c *Client) FindCol(ctx context.Context, row int, value string) (int, bool, error) {
	res, err := retry(ctx, c, "find-col", func() (lookup, error) {
		col, ok, err := c.backend.FindCol(ctx, row, value)
		return lookup{index: col, found: ok}, err
	})
	return res.index, res.found, err
}

// ReadCell returns the value at (row, col), empty when unset.
func (c *Client) ReadCell(ctx context.Context, row, col int) (string, error) {
	return retry(ctx, c, "read-cell", func() (string, error) {
		return c.backend.ReadCell(ctx, row, col)
	})
}

// WriteCells writes a batch in one round trip.
func (c *Client) WriteCells(ctx context.Context, cells []Cell) error {
	if len(cells) == 0 {
		return nil
	}
	_, err := retry(ctx, c, "write-cells", func() (struct{}, error) {
		return struct{}{}, c.backend.WriteCells(ctx, cells)
	})
	return err
}

// AppendRow writes values into a new row after the last one and returns its index.
func (c *Client) AppendRow(ctx context.Context, values []string) (int, error) {
	return retry(ctx, c, "append-row", func() (int, error) {
		return c.backend.AppendRow(ctx, values)
	})
}

// AppendCol writes header into a new column after the last header and returns its index.
func (c *Client) AppendCol(ctx context.Context, header string) (int, error) {
	return retry(ctx, c, "append-col", func() (int, error) {
		return c.backend.AppendCol(ctx, header)
	})
}

func (c *Client) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.policy.InitialInterval
	b.MaxInterval = c.policy.MaxInterval
	b.Multiplier = 2
	return b
}

func retry[T any](ctx context.Context, c *Client, op string, fn func() (T, error)) (T, error) {
	opts := []backoff.RetryOption{
		backoff.WithBackOff(c.backOff()),
		backoff.WithMaxElapsedTime(c.policy.MaxElapsed),
		backoff.WithNotify(func(err error, delay time.Duration) {
			c.logger.Warn().Err(err).Str("op", op).Dur("retry_in", delay).Msg("backing store call failed, backing off")
		}),
	}
	if c.policy.MaxTries > 0 {
		opts = append(opts, backoff.WithMaxTries(c.policy.MaxTries))
	}

	res, err := backoff.Retry(ctx, func() (T, error) {
		v, err := fn()
		if err != nil && !retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, opts...)
	if err == nil {
		return res, nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		if !errors.Is(err, ctxErr) {
			err = errors.Join(ctxErr, err)
		}
		return res, &BackingStoreError{Op: op, Err: err}
	}
	if errors.Is(err, ErrRateLimited) {
		return res, &LedgerUnavailableError{Op: op, Err: err}
	}
	return res, &BackingStoreError{Op: op, Err: err}
}
