// Package pipeline drives reports from the source through the resolver and
// ledger, using the registry as the durable work queue.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/verte-zerg/trialrank/internal/esologs"
	"github.com/verte-zerg/trialrank/internal/model"
	"github.com/verte-zerg/trialrank/internal/registry"
	"github.com/verte-zerg/trialrank/internal/resolver"
	"github.com/verte-zerg/trialrank/internal/sheet"
)

// DefaultDateLayout sorts lexicographically, which Last Log stamping relies on.
const DefaultDateLayout = "2006/01/02"

// Status is the short human-readable outcome of one report.
type Status string

const (
	StatusProcessed         Status = "processed"
	StatusMalformed         Status = "error: malformed report"
	StatusSourceUnavailable Status = "skipped: source unavailable"
	StatusStoreUnavailable  Status = "skipped: ledger store unavailable"
	StatusLedgerUnavailable Status = "aborted: ledger unavailable"
	StatusRegistered        Status = "registered"
	StatusKnown             Status = "already registered"
	StatusQueued            Status = "registered: source unavailable"
	StatusAnalyzed          Status = "analyzed"
)

// Source fetches raw report payloads by code.
type Source interface {
	FetchReport(ctx context.Context, code string) ([]byte, error)
}

// Registry is the report state machine the pipeline drives.
type Registry interface {
	RegisterIfNew(ctx context.Context, url string, meta model.ReportMeta) (bool, error)
	ListUnprocessed(ctx context.Context) ([]string, error)
	UpdateMeta(ctx context.Context, url string, meta model.ReportMeta) error
	MarkProcessed(ctx context.Context, url string, outcome model.Outcome) error
	MarkError(ctx context.Context, url, reason string) error
}

// Ledger applies resolved reports.
type Ledger interface {
	ApplyClosures(ctx context.Context, events []model.ClosureEvent, occurredAt string) error
	ApplyAttendance(ctx context.Context, attendees []string, closures int) error
}

// Options tunes how occurrence dates are written to the ledger.
type Options struct {
	DateLayout string
	Location   *time.Location
}

// Pipeline is constructed once per invocation and owns no global state.
type Pipeline struct {
	source   Source
	registry Registry
	ledger   Ledger
	logger   zerolog.Logger
	layout   string
	location *time.Location
}

// New returns a Pipeline over the given collaborators.
func New(source Source, reg Registry, ledger Ledger, opts Options, logger zerolog.Logger) *Pipeline {
	layout := opts.DateLayout
	if layout == "" {
		layout = DefaultDateLayout
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Pipeline{
		source:   source,
		registry: reg,
		ledger:   ledger,
		logger:   logger.With().Str("component", "pipeline").Logger(),
		layout:   layout,
		location: loc,
	}
}

// ReportResult is the outcome of one report within a run.
type ReportResult struct {
	URL     string
	Status  Status
	Summary string
	Err     error
}

// BatchResult collects the per-report outcomes of one run. Aborted is set when
// the run stopped before the queue was drained.
type BatchResult struct {
	Reports []ReportResult
	Aborted error
}

// Processed counts reports that reached PROCESSED in this run.
func (b BatchResult) Processed() int {
	n := 0
	for _, r := range b.Reports {
		if r.Status == StatusProcessed {
			n++
		}
	}
	return n
}

// Load registers every report URL found in text. Metadata is taken from the
// payload when it can be fetched; unreachable reports are queued with blank
// metadata so a later run picks them up.
func (p *Pipeline) Load(ctx context.Context, text string) ([]ReportResult, error) {
	urls := esologs.ExtractURLs(text)
	results := make([]ReportResult, 0, len(urls))
	for _, url := range urls {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := p.loadOne(ctx, url)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	p.logger.Info().Int("found", len(urls)).Msg("loaded report links")
	return results, nil
}

func (p *Pipeline) loadOne(ctx context.Context, url string) (ReportResult, error) {
	logger := p.logger.With().Str("url", url).Logger()
	res, fetchErr := p.fetchAndResolve(ctx, url)

	var malformed *resolver.MalformedReportError
	switch {
	case fetchErr == nil:
		inserted, err := p.registry.RegisterIfNew(ctx, url, res.Meta)
		if err != nil {
			return ReportResult{}, err
		}
		if !inserted {
			if err := p.registry.UpdateMeta(ctx, url, res.Meta); err != nil {
				return ReportResult{}, err
			}
			return ReportResult{URL: url, Status: StatusKnown}, nil
		}
		logger.Info().Str("title", res.Meta.Title).Msg("registered report")
		return ReportResult{URL: url, Status: StatusRegistered, Summary: res.Summary()}, nil

	case errors.As(fetchErr, &malformed):
		inserted, err := p.registry.RegisterIfNew(ctx, url, model.ReportMeta{})
		if err != nil {
			return ReportResult{}, err
		}
		if !inserted {
			return ReportResult{URL: url, Status: StatusKnown, Err: fetchErr}, nil
		}
		if err := p.registry.MarkError(ctx, url, fetchErr.Error()); err != nil {
			return ReportResult{}, err
		}
		logger.Warn().Err(fetchErr).Msg("registered malformed report")
		return ReportResult{URL: url, Status: StatusMalformed, Err: fetchErr}, nil

	default:
		inserted, err := p.registry.RegisterIfNew(ctx, url, model.ReportMeta{})
		if err != nil {
			return ReportResult{}, err
		}
		if !inserted {
			return ReportResult{URL: url, Status: StatusKnown, Err: fetchErr}, nil
		}
		logger.Warn().Err(fetchErr).Msg("registered report without metadata")
		return ReportResult{URL: url, Status: StatusQueued, Err: fetchErr}, nil
	}
}

// Analysis is a dry-run resolution of one report.
type Analysis struct {
	URL        string
	Status     Status
	Resolution resolver.Resolution
	Err        error
}

// Analyze resolves every report URL found in text without touching the
// registry or the ledger.
func (p *Pipeline) Analyze(ctx context.Context, text string) ([]Analysis, error) {
	urls := esologs.ExtractURLs(text)
	out := make([]Analysis, 0, len(urls))
	for _, url := range urls {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := p.fetchAndResolve(ctx, url)
		out = append(out, Analysis{URL: url, Status: statusOf(err, StatusAnalyzed), Resolution: res, Err: err})
	}
	return out, nil
}

// Process drains the unprocessed queue in registry order. Cancellation is
// honoured between reports; a report already being applied runs to completion.
func (p *Pipeline) Process(ctx context.Context) (BatchResult, error) {
	urls, err := p.registry.ListUnprocessed(ctx)
	if err != nil {
		return BatchResult{}, err
	}
	if len(urls) == 0 {
		p.logger.Info().Msg("all logs processed")
		return BatchResult{}, nil
	}

	var batch BatchResult
	for _, url := range urls {
		if err := ctx.Err(); err != nil {
			p.logger.Warn().Err(err).Int("remaining", len(urls)-len(batch.Reports)).Msg("batch cancelled")
			batch.Aborted = err
			break
		}
		res := p.processOne(ctx, url)
		batch.Reports = append(batch.Reports, res)
		if res.Status == StatusLedgerUnavailable {
			p.logger.Error().Err(res.Err).Str("url", url).Msg("ledger unavailable, aborting batch")
			batch.Aborted = res.Err
			break
		}
	}
	p.logger.Info().
		Int("queued", len(urls)).
		Int("processed", batch.Processed()).
		Msg("batch finished")
	return batch, nil
}

func (p *Pipeline) processOne(ctx context.Context, url string) ReportResult {
	logger := p.logger.With().Str("url", url).Logger()

	res, err := p.fetchAndResolve(ctx, url)
	var malformed *resolver.MalformedReportError
	switch {
	case errors.As(err, &malformed):
		if markErr := p.registry.MarkError(context.WithoutCancel(ctx), url, err.Error()); markErr != nil {
			logger.Error().Err(markErr).Msg("failed to mark report as error")
			return ReportResult{URL: url, Status: StatusStoreUnavailable, Err: markErr}
		}
		logger.Warn().Err(err).Msg("malformed report")
		return ReportResult{URL: url, Status: StatusMalformed, Err: err}
	case err != nil:
		logger.Warn().Err(err).Msg("report source unavailable")
		return ReportResult{URL: url, Status: StatusSourceUnavailable, Err: err}
	}

	work := context.WithoutCancel(ctx)
	if err := p.registry.UpdateMeta(work, url, res.Meta); err != nil {
		logger.Warn().Err(err).Msg("failed to refresh report metadata")
	}

	occurredAt := res.Meta.OccurredAt.In(p.location).Format(p.layout)
	if err := p.ledger.ApplyClosures(work, res.Closures, occurredAt); err != nil {
		return p.ledgerFailure(logger, url, err)
	}
	if err := p.ledger.ApplyAttendance(work, res.AttendeeNames(), len(res.Closures)); err != nil {
		return p.ledgerFailure(logger, url, err)
	}

	outcome := model.Outcome{
		Summary:      res.Summary(),
		ClosedTrials: res.ClosedTrials(),
		Attendees:    res.AttendeeNames(),
	}
	if err := p.registry.MarkProcessed(work, url, outcome); err != nil {
		// The ledger already holds this report; it will be counted again next run.
		logger.Error().Err(err).Msg("failed to mark report as processed")
		return ReportResult{URL: url, Status: StatusStoreUnavailable, Err: err}
	}
	logger.Info().Str("summary", outcome.Summary).Strs("trials", outcome.ClosedTrials).Msg("processed report")
	return ReportResult{URL: url, Status: StatusProcessed, Summary: outcome.Summary}
}

func (p *Pipeline) ledgerFailure(logger zerolog.Logger, url string, err error) ReportResult {
	var unavailable *sheet.LedgerUnavailableError
	if errors.As(err, &unavailable) {
		return ReportResult{URL: url, Status: StatusLedgerUnavailable, Err: err}
	}
	logger.Error().Err(err).Msg("ledger write failed, report left queued")
	return ReportResult{URL: url, Status: StatusStoreUnavailable, Err: err}
}

func (p *Pipeline) fetchAndResolve(ctx context.Context, url string) (resolver.Resolution, error) {
	code := registry.CodeFromURL(url)
	payload, err := p.source.FetchReport(ctx, code)
	if err != nil {
		return resolver.Resolution{}, fmt.Errorf("failed to fetch %s: %w", code, err)
	}
	return resolver.Resolve(payload)
}

func statusOf(err error, ok Status) Status {
	if err == nil {
		return ok
	}
	var malformed *resolver.MalformedReportError
	if errors.As(err, &malformed) {
		return StatusMalformed
	}
	return StatusSourceUnavailable
}
