// Package sheetfetch retrieves the tabular guidance source from a published
// sheet CSV export URL.
package sheetfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/heliowatt/permit-intake/internal/core/domain"
	"github.com/heliowatt/permit-intake/internal/core/ports"
	"github.com/heliowatt/permit-intake/internal/infrastructure/resilience"
)

const maxSourceBytes = 16 << 20

type Fetcher struct {
	url        string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	RequestTimeout     time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(url string, options Options) *Fetcher {
	timeout := options.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

// Fetch downloads the published sheet. The export endpoint serves CSV, so
// the declared format is always csv.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, ports.SourceFormat, error) {
	if strings.TrimSpace(f.url) == "" {
		return nil, "", domain.WrapError(
			domain.ErrSourceUnavailable,
			"fetch guidance source",
			errors.New("no source url configured"),
		)
	}

	var data []byte
	call := func(callCtx context.Context) error {
		req, err := http.NewRequestWithContext(callCtx, http.MethodGet, f.url, nil)
		if err != nil {
			return fmt.Errorf("create source request: %w", err)
		}
		resp, err := f.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("fetch source: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return fmt.Errorf("fetch source status: %s", resp.Status)
		}
		data, err = io.ReadAll(io.LimitReader(resp.Body, maxSourceBytes))
		if err != nil {
			return fmt.Errorf("read source body: %w", err)
		}
		return nil
	}

	var err error
	if f.executor != nil {
		err = f.executor.Execute(ctx, "source.fetch", call, classifyFetchError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, "", domain.WrapError(domain.ErrSourceUnavailable, "fetch guidance source", err)
	}
	return data, ports.FormatCSV, nil
}

func classifyFetchError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}
	return resilience.ErrorClassification{
		Retryable:     true,
		RecordFailure: true,
	}
}
