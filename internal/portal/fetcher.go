package portal

import (
	"context"
	"sort"
	"sync"

	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/pkg/errors"
	"gst-reconciliation-service/pkg/logger"
)

// FetcherConfig controls a multi-period download.
type FetcherConfig struct {
	// ReturnType is the portal return to download. Default "gstr-2b".
	ReturnType string

	// Section narrows GSTR-1 fetches; empty fetches the whole return.
	Section string

	// Workers bounds the number of concurrent portal calls. Default 8.
	Workers int

	// AllowGaps keeps the run alive when a period cannot be fetched
	// after retries: the period is recorded as a gap instead of
	// aborting. Off by default so a partial dataset never silently
	// masquerades as the whole quarter. Auth failures always abort.
	AllowGaps bool
}

// DefaultFetcherConfig returns the standard inward-statement download
// configuration.
func DefaultFetcherConfig() *FetcherConfig {
	return &FetcherConfig{
		ReturnType: "gstr-2b",
		Workers:    8,
	}
}

// PeriodPayload is one period's raw portal response.
type PeriodPayload struct {
	Period models.Period
	Body   []byte
}

// Fetcher downloads several filing periods concurrently through the
// portal client. Each period is an independent call; results come
// back ordered by period regardless of completion order.
type Fetcher struct {
	client *Client
	config *FetcherConfig
	log    logger.Logger
}

// NewFetcher builds a fetcher over the given client.
func NewFetcher(client *Client, config *FetcherConfig) *Fetcher {
	if config == nil {
		config = DefaultFetcherConfig()
	}
	if config.ReturnType == "" {
		config.ReturnType = "gstr-2b"
	}
	if config.Workers <= 0 {
		config.Workers = 8
	}
	return &Fetcher{
		client: client,
		config: config,
		log:    logger.WithComponent("fetcher"),
	}
}

// FetchPeriods downloads every period and returns payloads sorted by
// period plus the list of gap periods (non-empty only when gaps are
// allowed). Without AllowGaps the first failed period aborts the whole
// fetch; with it, only auth errors do.
func (f *Fetcher) FetchPeriods(ctx context.Context, taxpayerToken, gstin string, periods []models.Period) ([]PeriodPayload, []string, error) {
	if len(periods) == 0 {
		return []PeriodPayload{}, nil, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		period  models.Period
		payload []byte
		err     error
	}

	jobs := make(chan models.Period)
	results := make(chan outcome, len(periods))
	progress := logger.NewProgressTracker(f.log, "portal fetch", int64(len(periods)))

	var wg sync.WaitGroup
	for i := 0; i < f.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for period := range jobs {
				body, err := f.client.FetchReturn(ctx, taxpayerToken, gstin,
					f.config.ReturnType, f.config.Section, period)
				progress.Increment()
				results <- outcome{period: period, payload: body, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, period := range periods {
			select {
			case jobs <- period:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	payloads := make([]PeriodPayload, 0, len(periods))
	var gaps []string
	var abortErr error
	for res := range results {
		switch {
		case res.err == nil:
			payloads = append(payloads, PeriodPayload{Period: res.period, Body: res.payload})
		case errors.HasCategory(res.err, errors.CategoryAuth):
			// An expired or rejected token fails every remaining
			// period too; stop immediately.
			if abortErr == nil {
				abortErr = res.err
				cancel()
			}
		case f.config.AllowGaps:
			f.log.WithFields(logger.Fields{
				"period": res.period.String(),
			}).WithError(res.err).Warn("Period unavailable, recording gap")
			gaps = append(gaps, res.period.String())
		default:
			if abortErr == nil {
				abortErr = res.err
				cancel()
			}
		}
	}
	progress.Complete()

	if abortErr != nil {
		return nil, nil, abortErr
	}

	sort.Slice(payloads, func(i, j int) bool {
		return payloads[i].Period.Before(payloads[j].Period)
	})
	sort.Strings(gaps)

	f.log.WithFields(logger.Fields{
		"gstin":   gstin,
		"periods": len(periods),
		"fetched": len(payloads),
		"gaps":    len(gaps),
	}).Info("Portal fetch complete")
	return payloads, gaps, nil
}
