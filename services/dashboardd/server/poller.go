package server

import (
	"context"
	"time"
)

const pruneEvery = time.Hour

// Run polls the vault every PollInterval until ctx is cancelled, recording
// each sample and publishing it to stream subscribers. Without a chain
// reader it only waits for cancellation.
func (s *Server) Run(ctx context.Context) error {
	if s.reader == nil {
		s.logger.Info("chain reader not configured; stats poller disabled")
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	s.PollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.PollOnce(ctx)
		}
	}
}

// PollOnce takes one vault sample.
func (s *Server) PollOnce(ctx context.Context) {
	if s.reader == nil {
		return
	}
	stats := s.reader.ProtocolStats(ctx)
	if stats.FetchedAt.IsZero() {
		stats.FetchedAt = s.now()
	}
	result := "ok"
	if len(stats.Degraded) > 0 {
		result = "degraded"
		s.logger.Warn("vault stats degraded", "getters", stats.Degraded)
	}
	if s.store != nil {
		if err := s.store.RecordStats(ctx, stats); err != nil {
			result = "store_error"
			s.logger.Error("record stats failed", "error", err)
		}
		s.prune(ctx)
	}
	s.polls.WithLabelValues(result).Inc()
	s.hub.Publish(stats)
}

func (s *Server) prune(ctx context.Context) {
	now := s.now()
	if !s.lastPrune.IsZero() && now.Sub(s.lastPrune) < pruneEvery {
		return
	}
	s.lastPrune = now
	removed, err := s.store.Prune(ctx, now.Add(-s.retention))
	if err != nil {
		s.logger.Warn("prune stats failed", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Info("pruned stats", "removed", removed)
	}
}
