// Package anilist fetches rating lists and seasonal catalogs from the
// AniList GraphQL API.
package anilist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"anirec/internal/cache"
	"anirec/internal/logging"
	"anirec/internal/metrics"
	"anirec/internal/model"
)

// ErrListNotFound is returned when a required named list is absent.
var ErrListNotFound = errors.New("list not found")

// APIError is a non-2xx response or a GraphQL error payload.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("anilist status %d", e.Status)
	}
	return fmt.Sprintf("anilist status %d: %s", e.Status, e.Message)
}

// Source is the rating-list and catalog collaborator.
type Source interface {
	FetchLists(ctx context.Context, username string) ([]model.MediaList, error)
	FetchSeason(ctx context.Context, season model.Season, year int) ([]model.CatalogItem, error)
}

// Options configure an HTTPClient.
type Options struct {
	Endpoint    string
	Token       string
	Timeout     time.Duration
	RPS         float64
	Burst       int
	MaxAttempts int
	BaseBackoff time.Duration
	Cache       *cache.Cache
	CacheTTL    time.Duration
}

// HTTPClient is a rate-limited, retrying GraphQL client.
type HTTPClient struct {
	endpoint    string
	token       string
	httpClient  *http.Client
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker[[]byte]
	maxAttempts int
	baseBackoff time.Duration
	cache       *cache.Cache
	cacheTTL    time.Duration
}

func NewHTTPClient(opts Options) *HTTPClient {
	if opts.Endpoint == "" {
		opts.Endpoint = "https://graphql.anilist.co"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 500 * time.Millisecond
	}
	return &HTTPClient{
		endpoint:    opts.Endpoint,
		token:       opts.Token,
		httpClient:  &http.Client{Timeout: opts.Timeout},
		limiter:     newLimiter(opts.RPS, opts.Burst),
		breaker:     newBreaker(gobreaker.Settings{Timeout: 30 * time.Second}),
		maxAttempts: opts.MaxAttempts,
		baseBackoff: opts.BaseBackoff,
		cache:       opts.Cache,
		cacheTTL:    opts.CacheTTL,
	}
}

// FetchLists returns every named list in the user's anime collection.
func (c *HTTPClient) FetchLists(ctx context.Context, username string) ([]model.MediaList, error) {
	if strings.TrimSpace(username) == "" {
		return nil, errors.New("empty username")
	}
	var raw listsResponse
	key := "lists:" + strings.ToLower(username)
	if err := c.query(ctx, key, listsQuery, map[string]any{"name": username}, &raw); err != nil {
		return nil, err
	}
	out := make([]model.MediaList, 0, len(raw.Data.MediaListCollection.Lists))
	for _, l := range raw.Data.MediaListCollection.Lists {
		ml := model.MediaList{Name: l.Name, Entries: make([]model.RatedItem, 0, len(l.Entries))}
		for _, e := range l.Entries {
			ml.Entries = append(ml.Entries, model.RatedItem{Media: e.Media.toModel(), Score: e.ScoreRaw})
		}
		out = append(out, ml)
	}
	logging.Debug().Str("user", username).Int("lists", len(out)).Msg("lists fetched")
	return out, nil
}

// FetchSeason returns the first page of TV releases for a season, best scored first.
func (c *HTTPClient) FetchSeason(ctx context.Context, season model.Season, year int) ([]model.CatalogItem, error) {
	if year <= 0 {
		return nil, fmt.Errorf("invalid year %d", year)
	}
	var raw seasonResponse
	key := fmt.Sprintf("season:%s:%d", season, year)
	vars := map[string]any{"season": string(season), "year": year, "page": 1}
	if err := c.query(ctx, key, seasonQuery, vars, &raw); err != nil {
		return nil, err
	}
	out := make([]model.CatalogItem, 0, len(raw.Data.Page.Media))
	for _, m := range raw.Data.Page.Media {
		out = append(out, model.CatalogItem{Media: m.toModel()})
	}
	return out, nil
}

// FindList returns the list called name.
func FindList(lists []model.MediaList, name string) (model.MediaList, error) {
	for _, l := range lists {
		if l.Name == name {
			return l, nil
		}
	}
	return model.MediaList{}, fmt.Errorf("%w: %q", ErrListNotFound, name)
}

// query resolves a GraphQL request through the cache, the breaker and the
// retrying transport, decoding the payload into out.
func (c *HTTPClient) query(ctx context.Context, key, q string, vars map[string]any, out any) error {
	if c.cache != nil {
		if b, ok, err := c.cache.Get(key); err == nil && ok {
			if err := decode(b, out); err == nil {
				return nil
			}
		}
	}
	body, err := json.Marshal(gqlRequest{Query: q, Variables: vars})
	if err != nil {
		return err
	}
	payload, err := c.breaker.Execute(func() ([]byte, error) { return c.post(ctx, body) })
	if err != nil {
		return err
	}
	if err := decode(payload, out); err != nil {
		return err
	}
	if c.cache != nil {
		if err := c.cache.Set(key, payload, c.cacheTTL); err != nil {
			logging.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	return nil
}

func decode(b []byte, out any) error {
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode anilist response: %w", err)
	}
	var env struct {
		Errors []gqlError `json:"errors"`
	}
	if err := json.Unmarshal(b, &env); err == nil && len(env.Errors) > 0 {
		return &APIError{Status: env.Errors[0].Status, Message: env.Errors[0].Message}
	}
	return nil
}

func (c *HTTPClient) post(ctx context.Context, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.doWithRetry(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		var env struct {
			Errors []gqlError `json:"errors"`
		}
		if json.Unmarshal(b, &env) == nil && len(env.Errors) > 0 {
			apiErr.Message = env.Errors[0].Message
		}
		return nil, apiErr
	}
	return b, nil
}

func (c *HTTPClient) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *HTTPClient) doWithRetry(ctx context.Context, body []byte) (*http.Response, error) {
	backoff := c.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			metrics.IncAPIRetry("graphql")
		}
		req, err := c.newRequest(ctx, body)
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(req)
		if err == nil {
			if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599) {
				wait := retryAfter(resp.Header.Get("Retry-After"), backoff)
				_ = resp.Body.Close()
				lastErr = &APIError{Status: resp.StatusCode}
				if attempt == c.maxAttempts {
					break
				}
				// jitter +/-20%
				if jitter := time.Duration(float64(wait) * 0.2); jitter > 0 {
					wait = wait - jitter + time.Duration(time.Now().UnixNano()%int64(2*jitter))
				}
				logging.Debug().Int("status", resp.StatusCode).Int("attempt", attempt).Dur("wait", wait).Msg("anilist retry")
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				backoff *= 2
				continue
			}
			return resp, nil
		}
		lastErr = err
		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxAttempts, lastErr)
}

func retryAfter(header string, def time.Duration) time.Duration {
	if header == "" {
		return def
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return def
}
