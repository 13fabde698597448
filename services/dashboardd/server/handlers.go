package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"infrafi/analytics"
	"infrafi/chain"
	"infrafi/native/lending"
	"infrafi/subgraph"
)

const (
	defaultChartDays     = 30
	maxChartDays         = 365
	defaultTimelineFirst = 100
	maxTimelineFirst     = 1000
	maxBodyBytes         = 1 << 16
	curveStep            = lending.BasisPoints(500)
)

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// intQuery reads a positive integer query parameter, clamped to limit.
func intQuery(r *http.Request, name string, fallback, limit int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, badRequest("%s must be a positive integer", name)
	}
	if n > limit {
		n = limit
	}
	return n, nil
}

// userAddress validates the {address} path segment and returns it in the
// lower-case form the indexer keys users by.
func userAddress(r *http.Request) (string, error) {
	addr, err := chain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		return "", err
	}
	return strings.ToLower(addr.Hex()), nil
}

// latestStats returns the newest stored sample, if any.
func (s *Server) latestStats(ctx context.Context) (chain.ProtocolStats, bool) {
	if s.store == nil {
		return chain.ProtocolStats{}, false
	}
	stats, err := s.store.LatestStats(ctx)
	if err != nil {
		return chain.ProtocolStats{}, false
	}
	return stats, true
}

// currentProtocol prefers the indexed protocol entity and falls back to the
// latest live sample. It returns nil when neither is available.
func (s *Server) currentProtocol(ctx context.Context) *subgraph.ProtocolSnapshot {
	snapshot, err := s.indexer.Protocol(ctx)
	if err == nil {
		return &snapshot
	}
	s.logger.Debug("protocol entity unavailable", "error", err)
	if stats, ok := s.latestStats(ctx); ok {
		fallback := snapshotFromStats(stats)
		return &fallback
	}
	return nil
}

// GetProtocol returns the indexed protocol totals with the latest live sample.
func (s *Server) GetProtocol(w http.ResponseWriter, r *http.Request) {
	s.serveCached(w, r, "protocol", func(ctx context.Context) (any, error) {
		snapshot, err := s.indexer.Protocol(ctx)
		if err != nil {
			return nil, err
		}
		view := newProtocolView(snapshot, s.params.Decimals)
		if stats, ok := s.latestStats(ctx); ok {
			live := newStatsView(stats, s.params.Decimals)
			view.Live = &live
		}
		return view, nil
	})
}

// GetParams returns the protocol parameters and the sampled rate curve.
func (s *Server) GetParams(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, paramsView{
		Params: s.params,
		Curve:  s.params.RateModel.Curve(curveStep, s.params.Revenue.LenderShare()),
	})
}

// GetHistory returns the stored live samples for the last hours (default 24).
func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeJSON(w, http.StatusOK, []statsView{})
		return
	}
	hours, err := intQuery(r, "hours", 24, int(s.retention/time.Hour)+1)
	if err != nil {
		s.writeError(w, err)
		return
	}
	since := s.now().Add(-time.Duration(hours) * time.Hour)
	history, err := s.store.StatsSince(r.Context(), since)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]statsView, 0, len(history))
	for _, stats := range history {
		out = append(out, newStatsView(stats, s.params.Decimals))
	}
	s.writeJSON(w, http.StatusOK, out)
}

type positionView struct {
	Insights analytics.Insights `json:"insights"`
	OnChain  *onChainView       `json:"onchain,omitempty"`
}

// GetUserPosition returns the position panel for one account.
func (s *Server) GetUserPosition(w http.ResponseWriter, r *http.Request) {
	address, err := userAddress(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.serveCached(w, r, "users/"+address+"/position", func(ctx context.Context) (any, error) {
		user, err := s.indexer.UserPosition(ctx, address)
		if err != nil {
			return nil, err
		}
		view := positionView{Insights: s.builder.Insights(user, s.params)}
		if s.reader != nil {
			position, err := s.reader.UserPosition(ctx, address)
			if err != nil {
				s.logger.Warn("live position unavailable", "user", address, "error", err)
			} else {
				view.OnChain = newOnChainView(position, s.params.Decimals)
			}
		}
		return view, nil
	})
}

// GetUserTimeline returns the account's events, newest first.
func (s *Server) GetUserTimeline(w http.ResponseWriter, r *http.Request) {
	address, err := userAddress(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	first, err := intQuery(r, "first", defaultTimelineFirst, maxTimelineFirst)
	if err != nil {
		s.writeError(w, err)
		return
	}
	key := fmt.Sprintf("users/%s/timeline/%d", address, first)
	s.serveCached(w, r, key, func(ctx context.Context) (any, error) {
		timeline, err := s.indexer.UserTimeline(ctx, address, first)
		if err != nil {
			return nil, err
		}
		view := timelineView{Address: address, Events: make([]eventView, 0, len(timeline.Events))}
		for _, event := range timeline.Events {
			view.Events = append(view.Events, newEventView(event, s.params.Decimals))
		}
		return view, nil
	})
}

// GetUserPerformance returns the account's balance history series.
func (s *Server) GetUserPerformance(w http.ResponseWriter, r *http.Request) {
	address, err := userAddress(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.serveCached(w, r, "users/"+address+"/performance", func(ctx context.Context) (any, error) {
		timeline, err := s.indexer.UserTimeline(ctx, address, maxTimelineFirst)
		if err != nil {
			return nil, err
		}
		return s.builder.UserPerformance(timeline.Events, timeline.User), nil
	})
}

// GetUserNodes lists the OORT nodes the account owns, read live from the
// node registry. The list is not cached.
func (s *Server) GetUserNodes(w http.ResponseWriter, r *http.Request) {
	address, err := userAddress(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if s.reader == nil {
		s.writeError(w, errLiveReadsDisabled)
		return
	}
	nodes, err := s.reader.OwnerNodes(r.Context(), address)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newNodesView(address, nodes, s.params.Decimals))
}

// GetChart returns one of the protocol chart series.
func (s *Server) GetChart(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	days, err := intQuery(r, "days", defaultChartDays, maxChartDays)
	if err != nil {
		s.writeError(w, err)
		return
	}
	key := fmt.Sprintf("charts/%s/%d", kind, days)
	var build func(ctx context.Context) (any, error)
	switch kind {
	case "tvl":
		build = func(ctx context.Context) (any, error) {
			daily, err := s.indexer.DailySnapshots(ctx, days)
			if err != nil {
				return nil, err
			}
			return s.builder.TVLSeries(daily, s.currentProtocol(ctx)), nil
		}
	case "apy":
		build = func(ctx context.Context) (any, error) {
			daily, err := s.indexer.DailySnapshots(ctx, days)
			if err != nil {
				return nil, err
			}
			return s.builder.APYSeries(daily, s.currentProtocol(ctx)), nil
		}
	case "activity":
		build = func(ctx context.Context) (any, error) {
			daily, err := s.indexer.DailySnapshots(ctx, days)
			if err != nil {
				return nil, err
			}
			return s.builder.ActivitySeries(daily), nil
		}
	case "volume":
		build = func(ctx context.Context) (any, error) {
			daily, err := s.indexer.DailySnapshots(ctx, days)
			if err != nil {
				return nil, err
			}
			return s.builder.VolumeSeries(daily), nil
		}
	case "rates", "indexes":
		first, err := intQuery(r, "first", defaultTimelineFirst, maxTimelineFirst)
		if err != nil {
			s.writeError(w, err)
			return
		}
		key = fmt.Sprintf("%s/%d", key, first)
		start := s.now().Add(-time.Duration(days) * 24 * time.Hour).Unix()
		build = func(ctx context.Context) (any, error) {
			rates, err := s.indexer.RateSnapshots(ctx, first)
			if err != nil {
				return nil, err
			}
			if kind == "rates" {
				return s.builder.RateSeries(rates, start), nil
			}
			return s.builder.IndexSeries(rates, start), nil
		}
	default:
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("unknown chart %q", kind)})
		return
	}
	s.serveCached(w, r, key, build)
}

// validateRequest carries the typed amount and the decimal-string maximum
// it is checked against, such as a wallet balance.
type validateRequest struct {
	Amount   string `json:"amount"`
	Max      string `json:"max"`
	Decimals uint8  `json:"decimals"`
}

type validateResponse struct {
	lending.ValidationResult
	Raw string `json:"raw,omitempty"`
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("invalid json body")
	}
	return nil
}

func (s *Server) decimalsOr(d uint8) uint8 {
	if d == 0 {
		return s.params.Decimals
	}
	return d
}

// ValidateAmount checks an amount typed by the user against a maximum.
func (s *Server) ValidateAmount(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	decimals := s.decimalsOr(req.Decimals)
	maxAmount, err := lending.ParseDecimalStrict(req.Max, decimals)
	if err != nil {
		s.writeError(w, badRequest("max: %v", err))
		return
	}
	result := lending.ValidateAmount(req.Amount, maxAmount, decimals)
	resp := validateResponse{ValidationResult: result}
	if result.IsValid {
		resp.Raw = result.Amount.Dec()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type formatRequest struct {
	Raw      string `json:"raw"`
	Decimals uint8  `json:"decimals"`
	Places   *int32 `json:"places"`
}

type formatResponse struct {
	Decimal     string  `json:"decimal"`
	Abbreviated string  `json:"abbreviated"`
	Fixed       string  `json:"fixed"`
	Float       float64 `json:"float"`
}

// FormatAmount renders a raw integer amount in the display formats.
func (s *Server) FormatAmount(w http.ResponseWriter, r *http.Request) {
	var req formatRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	amount, ok := lending.ParseRaw(strings.TrimSpace(req.Raw))
	if !ok {
		s.writeError(w, badRequest("raw must be a non-negative integer"))
		return
	}
	decimals := s.decimalsOr(req.Decimals)
	places := int32(6)
	if req.Places != nil {
		if *req.Places < 0 || *req.Places > 18 {
			s.writeError(w, badRequest("places must be between 0 and 18"))
			return
		}
		places = *req.Places
	}
	s.writeJSON(w, http.StatusOK, formatResponse{
		Decimal:     lending.ToDecimalString(amount, decimals),
		Abbreviated: lending.ToAbbreviatedString(amount, decimals),
		Fixed:       lending.ToFixedString(amount, decimals, places),
		Float:       lending.ToFloat(amount, decimals),
	})
}
