// Package registry tracks which reports have been seen and processed.
//
// The registry is the durable work queue: a report stays UNPROCESSED until
// MarkProcessed succeeds, so a crashed run simply sees it again next time.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/verte-zerg/trialrank/internal/model"
)

var (
	ErrNotFound          = errors.New("report not registered")
	ErrInvalidTransition = errors.New("invalid report state transition")
)

// Storage persists registry entries in insertion order.
type Storage interface {
	InsertLog(ctx context.Context, r model.Report) (bool, error)
	GetLog(ctx context.Context, url string) (model.Report, bool, error)
	UpdateLog(ctx context.Context, r model.Report) error
	ListLogs(ctx context.Context, state model.ReportState) ([]model.Report, error)
}

// Registry implements the report state machine over a Storage.
type Registry struct {
	storage Storage
	now     func() time.Time
}

// New returns a Registry backed by storage.
func New(storage Storage) *Registry {
	return &Registry{storage: storage, now: time.Now}
}

// CodeFromURL returns the last path segment of a report URL.
func CodeFromURL(url string) string {
	url = strings.TrimRight(url, "/")
	if i := strings.LastIndex(url, "/"); i >= 0 {
		return url[i+1:]
	}
	return url
}

// RegisterIfNew inserts url as UNPROCESSED unless it is already known.
func (r *Registry) RegisterIfNew(ctx context.Context, url string, meta model.ReportMeta) (bool, error) {
	if url == "" {
		return false, fmt.Errorf("report url is empty")
	}
	inserted, err := r.storage.InsertLog(ctx, model.Report{
		URL:          url,
		Code:         CodeFromURL(url),
		Meta:         meta,
		State:        model.StateUnprocessed,
		RegisteredAt: r.now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("failed to register %s: %w", url, err)
	}
	return inserted, nil
}

// ListUnprocessed returns the URLs still waiting to be processed.
func (r *Registry) ListUnprocessed(ctx context.Context) ([]string, error) {
	reports, err := r.storage.ListLogs(ctx, model.StateUnprocessed)
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed reports: %w", err)
	}
	urls := make([]string, 0, len(reports))
	for _, rep := range reports {
		if rep.State != model.StateUnprocessed {
			continue
		}
		urls = append(urls, rep.URL)
	}
	return urls, nil
}

// Get returns the entry for url.
func (r *Registry) Get(ctx context.Context, url string) (model.Report, error) {
	rep, ok, err := r.storage.GetLog(ctx, url)
	if err != nil {
		return model.Report{}, fmt.Errorf("failed to load %s: %w", url, err)
	}
	if !ok {
		return model.Report{}, fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	return rep, nil
}

// List returns all entries in the given state, or every entry when state is empty.
func (r *Registry) List(ctx context.Context, state model.ReportState) ([]model.Report, error) {
	reports, err := r.storage.ListLogs(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return reports, nil
}

// UpdateMeta refreshes title, owner and date of a report that is still queued.
func (r *Registry) UpdateMeta(ctx context.Context, url string, meta model.ReportMeta) error {
	rep, err := r.Get(ctx, url)
	if err != nil {
		return err
	}
	if rep.State != model.StateUnprocessed {
		return nil
	}
	if rep.Meta.Title == meta.Title && rep.Meta.Owner == meta.Owner && rep.Meta.OccurredAt.Equal(meta.OccurredAt) {
		return nil
	}
	rep.Meta = meta
	return r.update(ctx, rep)
}

// MarkProcessed moves an UNPROCESSED report to PROCESSED. Repeating it is a no-op.
func (r *Registry) MarkProcessed(ctx context.Context, url string, outcome model.Outcome) error {
	rep, err := r.Get(ctx, url)
	if err != nil {
		return err
	}
	switch rep.State {
	case model.StateProcessed:
		return nil
	case model.StateError:
		return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, url, rep.State)
	}
	rep.State = model.StateProcessed
	rep.Summary = outcome.Summary
	rep.ClosedTrials = outcome.ClosedTrials
	rep.Attendees = outcome.Attendees
	rep.Reason = ""
	return r.update(ctx, rep)
}

// MarkError moves an UNPROCESSED report to ERROR so it is not retried automatically.
func (r *Registry) MarkError(ctx context.Context, url, reason string) error {
	rep, err := r.Get(ctx, url)
	if err != nil {
		return err
	}
	switch rep.State {
	case model.StateError:
		return nil
	case model.StateProcessed:
		return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, url, rep.State)
	}
	rep.State = model.StateError
	rep.Summary = "ERROR"
	rep.Reason = reason
	return r.update(ctx, rep)
}

// Requeue moves an ERROR report back to UNPROCESSED.
func (r *Registry) Requeue(ctx context.Context, url string) error {
	rep, err := r.Get(ctx, url)
	if err != nil {
		return err
	}
	switch rep.State {
	case model.StateUnprocessed:
		return nil
	case model.StateProcessed:
		return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, url, rep.State)
	}
	rep.State = model.StateUnprocessed
	rep.Summary = ""
	rep.Reason = ""
	return r.update(ctx, rep)
}

func (r *Registry) update(ctx context.Context, rep model.Report) error {
	if err := r.storage.UpdateLog(ctx, rep); err != nil {
		return fmt.Errorf("failed to update %s: %w", rep.URL, err)
	}
	return nil
}
