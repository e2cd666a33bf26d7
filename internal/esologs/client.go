package esologs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coocood/freecache"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

const (
	// DefaultBaseURL is the public ESO Logs host.
	DefaultBaseURL = "https://www.esologs.com"

	maxPayloadBytes = 32 << 20
)

// SourceUnavailableError reports a failed or rejected fetch. It is transient.
type SourceUnavailableError struct {
	Code   string
	Status int
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("report %s unavailable: status %d", e.Code, e.Status)
	}
	return fmt.Sprintf("report %s unavailable: %v", e.Code, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// Options configures the API client.
type Options struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	CacheSize int
	CacheTTL  time.Duration
}

type payloadCache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
}

// Client fetches raw report payloads.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	cache   payloadCache
	logger  zerolog.Logger
}

// NewClient returns a Client. A CacheSize of zero disables payload caching.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: base,
		apiKey:  opts.APIKey,
		http:    &http.Client{Timeout: timeout},
		cache:   newPayloadCache(opts.CacheSize, opts.CacheTTL),
		logger:  logger.With().Str("component", "esologs").Logger(),
	}
}

// FetchReport returns the raw fights payload of the report with the given code.
func (c *Client) FetchReport(ctx context.Context, code string) ([]byte, error) {
	if payload, ok := c.cache.Get(code); ok {
		c.logger.Debug().Str("code", code).Msg("report payload served from cache")
		return payload, nil
	}
	endpoint := fmt.Sprintf("%s/v1/report/fights/%s?api_key=%s", c.baseURL, url.PathEscape(code), url.QueryEscape(c.apiKey))
	payload, err := c.get(ctx, endpoint, code)
	if err != nil {
		return nil, err
	}
	c.cache.Set(code, payload)
	return payload, nil
}

// RemoteZone is a zone as listed by the API, reduced to its final encounter.
type RemoteZone struct {
	Name               string
	FinalEncounterID   int
	FinalEncounterName string
}

type zonePayload struct {
	Name       string `json:"name"`
	Encounters []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"encounters"`
}

// FetchZones lists zones from the API. The last encounter of a zone is its final boss.
func (c *Client) FetchZones(ctx context.Context) ([]RemoteZone, error) {
	endpoint := fmt.Sprintf("%s/v1/zones?api_key=%s", c.baseURL, url.QueryEscape(c.apiKey))
	payload, err := c.get(ctx, endpoint, "zones")
	if err != nil {
		return nil, err
	}
	var raw []zonePayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode zones: %w", err)
	}
	zones := make([]RemoteZone, 0, len(raw))
	for _, z := range raw {
		if len(z.Encounters) == 0 {
			continue
		}
		last := z.Encounters[len(z.Encounters)-1]
		zones = append(zones, RemoteZone{Name: z.Name, FinalEncounterID: last.ID, FinalEncounterName: last.Name})
	}
	return zones, nil
}

func (c *Client) get(ctx context.Context, endpoint, code string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &SourceUnavailableError{Code: code, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Str("code", code).Int("status", resp.StatusCode).Msg("report source rejected request")
		return nil, &SourceUnavailableError{Code: code, Status: resp.StatusCode}
	}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, &SourceUnavailableError{Code: code, Err: err}
	}
	return payload, nil
}

type freeCache struct {
	cache *freecache.Cache
	ttl   int
}

func newPayloadCache(size int, ttl time.Duration) payloadCache {
	if size <= 0 {
		return noopCache{}
	}
	seconds := 0
	if ttl > 0 {
		seconds = max(int(ttl.Seconds()), 1)
	}
	return &freeCache{cache: freecache.NewCache(size), ttl: seconds}
}

func (f *freeCache) Get(key string) ([]byte, bool) {
	val, err := f.cache.Get([]byte(key))
	if err != nil {
		return nil, false
	}
	return val, true
}

func (f *freeCache) Set(key string, value []byte) {
	// Entries larger than a cache segment are rejected; they are simply fetched again.
	_ = f.cache.Set([]byte(key), value, f.ttl)
}

type noopCache struct{}

func (noopCache) Get(string) ([]byte, bool) { return nil, false }
func (noopCache) Set(string, []byte)        {}
