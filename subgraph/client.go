package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultPageSize = 1000
	// maxSkip is the largest skip value the hosted indexer accepts.
	maxSkip = 5000
	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 32 << 20
)

// ErrNotFound is returned when the requested entity is not indexed.
var ErrNotFound = errors.New("subgraph: entity not found")

// Config controls how the Client reaches the indexer.
type Config struct {
	// Endpoint is the GraphQL HTTP endpoint of the subgraph.
	Endpoint string
	// Timeout bounds each HTTP round trip. Zero selects 10s.
	Timeout time.Duration
	// RequestsPerSecond paces outgoing queries. Zero disables pacing.
	RequestsPerSecond float64
	Burst             int
	// PageSize bounds the records requested per page. Zero selects 1000.
	PageSize int
	// Transport overrides the base transport; it is wrapped for tracing.
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// Client issues GraphQL queries against the InfraFi subgraph.
type Client struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
	pageSize int
	logger   *slog.Logger
}

// NewClient constructs a Client from the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("subgraph endpoint is required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("invalid subgraph endpoint %q", endpoint)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > defaultPageSize {
		pageSize = defaultPageSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(base)},
		limiter:  limiter,
		pageSize: pageSize,
		logger:   logger.With(slog.String("component", "subgraph")),
	}, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors GraphQLErrors   `json:"errors"`
}

// GraphQLError is a single error entry reported by the indexer.
type GraphQLError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// GraphQLErrors is the error list of a failed query.
type GraphQLErrors []GraphQLError

func (e GraphQLErrors) Error() string {
	if len(e) == 0 {
		return "graphql error"
	}
	msgs := make([]string, 0, len(e))
	for _, item := range e {
		msgs = append(msgs, item.Message)
	}
	return "graphql error: " + strings.Join(msgs, "; ")
}

// Query executes a GraphQL query and decodes the data object into result.
func (c *Client) Query(ctx context.Context, query string, variables map[string]any, result any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("wait for rate limiter: %w", err)
		}
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(graphQLRequest{Query: query, Variables: variables}); err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Client", "infrafi")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("query subgraph: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("subgraph query failed with status %s", resp.Status)
	}

	var gqlResp graphQLResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&gqlResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(gqlResp.Errors) > 0 {
		return gqlResp.Errors
	}
	if result != nil && len(gqlResp.Data) > 0 {
		if err := json.Unmarshal(gqlResp.Data, result); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

// Protocol returns the protocol-wide aggregates.
func (c *Client) Protocol(ctx context.Context) (ProtocolSnapshot, error) {
	var data struct {
		Protocol *rawProtocol `json:"protocol"`
	}
	if err := c.Query(ctx, protocolQuery, nil, &data); err != nil {
		return ProtocolSnapshot{}, err
	}
	if data.Protocol == nil {
		return ProtocolSnapshot{}, ErrNotFound
	}
	return decodeProtocol(*data.Protocol), nil
}

// UserPosition returns the indexed aggregates for address.
func (c *Client) UserPosition(ctx context.Context, address string) (UserSnapshot, error) {
	var data struct {
		User *rawUser `json:"user"`
	}
	vars := map[string]any{"address": normalizeAddress(address)}
	if err := c.Query(ctx, userPositionQuery, vars, &data); err != nil {
		return UserSnapshot{}, err
	}
	if data.User == nil {
		return UserSnapshot{}, ErrNotFound
	}
	return decodeUser(*data.User), nil
}

// UserTimeline returns up to first events of each kind for address, oldest
// first. Events reachable through the user entity and through the direct
// collection filters are merged by id. A user the indexer has never seen
// yields an empty timeline with a nil User.
func (c *Client) UserTimeline(ctx context.Context, address string, first int) (Timeline, error) {
	if first <= 0 || first > c.pageSize {
		first = c.pageSize
	}
	addr := normalizeAddress(address)
	var data map[string]json.RawMessage
	vars := map[string]any{"address": addr, "user": addr, "first": first}
	if err := c.Query(ctx, timelineQuery(), vars, &data); err != nil {
		return Timeline{}, err
	}

	var (
		timeline Timeline
		report   DecodeReport
		nested   []Event
	)
	if rawUserMsg, ok := data["user"]; ok && !isNull(rawUserMsg) {
		var raw rawUser
		if err := json.Unmarshal(rawUserMsg, &raw); err != nil {
			return Timeline{}, fmt.Errorf("decode user: %w", err)
		}
		user := decodeUser(raw)
		timeline.User = &user
		nested = userEvents(raw, &report)
	}

	collections := make(map[string][]json.RawMessage, len(topLevelCollections))
	for _, name := range topLevelCollections {
		msg, ok := data[name]
		if !ok || isNull(msg) {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(msg, &items); err != nil {
			return Timeline{}, fmt.Errorf("decode %s: %w", name, err)
		}
		collections[name] = items
	}
	direct, directReport := DecodeEventCollections(collections, addr)
	report.Merge(directReport)
	report.Log(c.logger, "user_timeline")

	timeline.Events = mergeEvents(nested, direct)
	return timeline, nil
}

// DailySnapshots returns up to days daily aggregates, newest first.
func (c *Client) DailySnapshots(ctx context.Context, days int) ([]DailySnapshot, error) {
	if days <= 0 {
		days = 30
	}
	var data struct {
		DailySnapshots []rawDailySnapshot `json:"dailySnapshots"`
	}
	if err := c.Query(ctx, dailySnapshotsQuery, map[string]any{"days": days}, &data); err != nil {
		return nil, err
	}
	var report DecodeReport
	out := decodeDailySnapshots(data.DailySnapshots, &report)
	report.Log(c.logger, "daily_snapshots")
	return out, nil
}

// RateSnapshots returns up to first interest rate snapshots, newest first.
func (c *Client) RateSnapshots(ctx context.Context, first int) ([]RateSnapshot, error) {
	if first <= 0 || first > c.pageSize {
		first = c.pageSize
	}
	var data struct {
		Snapshots []rawRateSnapshot `json:"interestRateSnapshots"`
	}
	if err := c.Query(ctx, rateSnapshotsQuery, map[string]any{"first": first}, &data); err != nil {
		return nil, err
	}
	var report DecodeReport
	out := decodeRateSnapshots(data.Snapshots, &report)
	report.Log(c.logger, "rate_snapshots")
	return out, nil
}

// RateSnapshotsSince pages every rate snapshot at or after start, oldest
// first.
func (c *Client) RateSnapshotsSince(ctx context.Context, start int64) ([]RateSnapshot, error) {
	var (
		out    []RateSnapshot
		report DecodeReport
	)
	for skip := 0; skip <= maxSkip; skip += c.pageSize {
		var data struct {
			Snapshots []rawRateSnapshot `json:"interestRateSnapshots"`
		}
		vars := map[string]any{"startTime": start, "first": c.pageSize, "skip": skip}
		if err := c.Query(ctx, rateSnapshotsSinceQuery, vars, &data); err != nil {
			return nil, err
		}
		out = append(out, decodeRateSnapshots(data.Snapshots, &report)...)
		if len(data.Snapshots) < c.pageSize {
			break
		}
	}
	report.Log(c.logger, "rate_snapshots_since")
	return out, nil
}

// EventsSince pages every protocol event at or after start across all
// collections, oldest first.
func (c *Client) EventsSince(ctx context.Context, start int64) ([]Event, error) {
	var (
		events []Event
		report DecodeReport
	)
	for _, collection := range topLevelCollections {
		query := eventsSinceQuery(collection)
		for skip := 0; skip <= maxSkip; skip += c.pageSize {
			var data map[string][]json.RawMessage
			vars := map[string]any{"startTime": start, "first": c.pageSize, "skip": skip}
			if err := c.Query(ctx, query, vars, &data); err != nil {
				return nil, fmt.Errorf("%s: %w", collection, err)
			}
			page, pageReport := DecodeEventCollections(data, "")
			report.Merge(pageReport)
			events = append(events, page...)
			if len(data[collection]) < c.pageSize {
				break
			}
			if skip+c.pageSize > maxSkip {
				c.logger.Warn("subgraph pagination limit reached",
					slog.String("collection", collection),
					slog.Int64("start", start))
			}
		}
	}
	report.Log(c.logger, "events_since")
	SortEvents(events)
	return events, nil
}

func normalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func isNull(msg json.RawMessage) bool {
	return len(bytes.TrimSpace(msg)) == 0 || bytes.Equal(bytes.TrimSpace(msg), []byte("null"))
}
