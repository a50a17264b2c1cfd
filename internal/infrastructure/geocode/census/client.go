// Package census resolves free-text addresses to legal jurisdictions using
// the US Census geocoding service: a forward lookup for coordinates followed
// by a reverse lookup for the geographies containing them.
package census

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/heliowatt/permit-intake/internal/core/domain"
	"github.com/heliowatt/permit-intake/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	benchmark  string
	vintage    string
	httpClient *http.Client
	limiter    *rate.Limiter
	executor   *resilience.Executor
}

type Options struct {
	Benchmark          string
	Vintage            string
	RequestsPerSecond  float64
	RequestTimeout     time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(baseURL string, options Options) *Client {
	benchmark := options.Benchmark
	if benchmark == "" {
		benchmark = "Public_AR_Current"
	}
	vintage := options.Vintage
	if vintage == "" {
		vintage = "Current_Current"
	}
	rps := options.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	timeout := options.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		benchmark:  benchmark,
		vintage:    vintage,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		executor:   options.ResilienceExecutor,
	}
}

type coordinates struct {
	Lon float64 `json:"x"`
	Lat float64 `json:"y"`
}

type forwardResponse struct {
	Result struct {
		AddressMatches []struct {
			Coordinates coordinates `json:"coordinates"`
		} `json:"addressMatches"`
	} `json:"result"`
}

type geographyEntry struct {
	Name string `json:"NAME"`
}

type reverseResponse struct {
	Result struct {
		Geographies map[string][]geographyEntry `json:"geographies"`
	} `json:"result"`
}

// Resolve geocodes an address and reduces the containing geographies to a
// Jurisdiction. A zero Jurisdiction with nil error means the address did not
// match or the response carried no usable geographies; errors are reserved
// for transport-level failures so the caller can decide how to degrade.
func (c *Client) Resolve(ctx context.Context, address string) (domain.Jurisdiction, error) {
	if strings.TrimSpace(address) == "" {
		return domain.Jurisdiction{}, nil
	}

	var forward forwardResponse
	if err := c.getJSON(ctx, "/geocoder/locations/onelineaddress", url.Values{
		"address":   {address},
		"benchmark": {c.benchmark},
		"format":    {"json"},
	}, &forward, "geocode.forward"); err != nil {
		return domain.Jurisdiction{}, err
	}
	if len(forward.Result.AddressMatches) == 0 {
		return domain.Jurisdiction{}, nil
	}

	coords := forward.Result.AddressMatches[0].Coordinates
	var reverse reverseResponse
	if err := c.getJSON(ctx, "/geocoder/geographies/coordinates", url.Values{
		"x":         {strconv.FormatFloat(coords.Lon, 'f', -1, 64)},
		"y":         {strconv.FormatFloat(coords.Lat, 'f', -1, 64)},
		"benchmark": {c.benchmark},
		"vintage":   {c.vintage},
		"format":    {"json"},
	}, &reverse, "geocode.reverse"); err != nil {
		return domain.Jurisdiction{}, err
	}

	return reduceGeographies(reverse.Result.Geographies), nil
}

func reduceGeographies(geographies map[string][]geographyEntry) domain.Jurisdiction {
	return domain.Jurisdiction{
		County:   firstName(geographies["Counties"]),
		Township: firstName(geographies["County Subdivisions"]),
		Place:    firstName(geographies["Places"]),
	}
}

func firstName(entries []geographyEntry) string {
	if len(entries) == 0 {
		return ""
	}
	return strings.TrimSpace(entries[0].Name)
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any, operation string) error {
	call := func(callCtx context.Context) error {
		if err := c.limiter.Wait(callCtx); err != nil {
			return err
		}
		return c.doGet(callCtx, path, query, out, operation)
	}

	if c.executor != nil {
		return c.executor.Execute(ctx, operation, call, classifyCensusError)
	}
	return call(ctx)
}

func (c *Client) doGet(ctx context.Context, path string, query url.Values, out any, operation string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("census %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}
