// Package analytics turns indexed protocol history into chart series and
// report rows.
package analytics

import (
	"time"

	"infrafi/native/lending"
	"infrafi/subgraph"
)

const (
	// NowLabel marks the point synthesised from the current protocol state.
	NowLabel = "Now"
	// freshnessWindow is how stale the newest historical point must be
	// before a "Now" point is appended.
	freshnessWindow = 3600

	dayLabelLayout  = "Jan 2"
	timeLabelLayout = "Jan 2 15:04"
)

// Builder produces chart series. The zero value uses the wall clock and 18
// decimals.
type Builder struct {
	now      func() time.Time
	decimals uint8
}

// NewBuilder returns a Builder for amounts with the given decimals. now may
// be nil to use the wall clock.
func NewBuilder(decimals uint8, now func() time.Time) *Builder {
	return &Builder{now: now, decimals: decimals}
}

func (b *Builder) clock() int64 {
	if b == nil || b.now == nil {
		return time.Now().Unix()
	}
	return b.now().Unix()
}

func (b *Builder) scale() uint8 {
	if b == nil || b.decimals == 0 {
		return lending.DefaultDecimals
	}
	return b.decimals
}

func (b *Builder) float(v lending.TokenAmount) float64 {
	return lending.ToFloat(v, b.scale())
}

func dayLabel(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(dayLabelLayout)
}

func timeLabel(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(timeLabelLayout)
}

// stale reports whether a series whose newest point is at latest should be
// followed by a current-state point.
func stale(latest, now int64) bool {
	return now-latest > freshnessWindow
}

// TVLPoint is one sample of total value locked.
type TVLPoint struct {
	Label           string  `json:"date"`
	Timestamp       int64   `json:"timestamp"`
	TotalSupplied   float64 `json:"totalSupplied"`
	TotalBorrowed   float64 `json:"totalBorrowed"`
	TotalCollateral float64 `json:"totalCollateral"`
}

func (b *Builder) tvlPoint(label string, ts int64, p subgraph.ProtocolSnapshot) TVLPoint {
	return TVLPoint{
		Label:           label,
		Timestamp:       ts,
		TotalSupplied:   b.float(p.TotalLiquidity),
		TotalBorrowed:   b.float(p.TotalDebt),
		TotalCollateral: b.float(p.TotalCollateralValue),
	}
}

// TVLSeries converts newest-first daily snapshots into an oldest-first
// series. When current is non-nil its state is appended as a "Now" point
// unless the newest snapshot is within the last hour; without history the
// current state is the only point.
func (b *Builder) TVLSeries(daily []subgraph.DailySnapshot, current *subgraph.ProtocolSnapshot) []TVLPoint {
	now := b.clock()
	if len(daily) == 0 {
		if current == nil {
			return []TVLPoint{}
		}
		return []TVLPoint{b.tvlPoint(dayLabel(now), now, *current)}
	}
	out := make([]TVLPoint, 0, len(daily)+1)
	for i := len(daily) - 1; i >= 0; i-- {
		snap := daily[i]
		out = append(out, TVLPoint{
			Label:           dayLabel(snap.Date),
			Timestamp:       snap.Date,
			TotalSupplied:   b.float(snap.TotalLiquidity),
			TotalBorrowed:   b.float(snap.TotalDebt),
			TotalCollateral: b.float(snap.TotalCollateralValue),
		})
	}
	if current != nil && stale(out[len(out)-1].Timestamp, now) {
		out = append(out, b.tvlPoint(NowLabel, now, *current))
	}
	return out
}

// APYPoint is one sample of the rate history, in percent.
type APYPoint struct {
	Label       string  `json:"date"`
	Timestamp   int64   `json:"timestamp"`
	SupplyAPY   float64 `json:"supplyAPY"`
	BorrowAPY   float64 `json:"borrowAPY"`
	Utilization float64 `json:"utilization"`
}

func apyPoint(label string, ts int64, supply, borrow, util lending.BasisPoints) APYPoint {
	return APYPoint{
		Label:       label,
		Timestamp:   ts,
		SupplyAPY:   lending.BasisPointsToPercent(supply),
		BorrowAPY:   lending.BasisPointsToPercent(borrow),
		Utilization: lending.BasisPointsToPercent(util),
	}
}

// APYSeries converts newest-first daily snapshots into an oldest-first rate
// series, with the same "Now" rule as TVLSeries.
func (b *Builder) APYSeries(daily []subgraph.DailySnapshot, current *subgraph.ProtocolSnapshot) []APYPoint {
	now := b.clock()
	if len(daily) == 0 {
		if current == nil {
			return []APYPoint{}
		}
		return []APYPoint{apyPoint(dayLabel(now), now, current.SupplyAPY, current.BorrowAPY, current.UtilizationRate)}
	}
	out := make([]APYPoint, 0, len(daily)+1)
	for i := len(daily) - 1; i >= 0; i-- {
		snap := daily[i]
		out = append(out, apyPoint(dayLabel(snap.Date), snap.Date, snap.SupplyAPY, snap.BorrowAPY, snap.UtilizationRate))
	}
	if current != nil && stale(out[len(out)-1].Timestamp, now) {
		out = append(out, apyPoint(NowLabel, now, current.SupplyAPY, current.BorrowAPY, current.UtilizationRate))
	}
	return out
}

// ActivityPoint counts one day's events by kind.
type ActivityPoint struct {
	Label     string `json:"date"`
	Timestamp int64  `json:"timestamp"`
	subgraph.EventCounts
}

// ActivitySeries converts newest-first daily snapshots into oldest-first
// event counts.
func (b *Builder) ActivitySeries(daily []subgraph.DailySnapshot) []ActivityPoint {
	out := make([]ActivityPoint, 0, len(daily))
	for i := len(daily) - 1; i >= 0; i-- {
		snap := daily[i]
		out = append(out, ActivityPoint{Label: dayLabel(snap.Date), Timestamp: snap.Date, EventCounts: snap.Counts})
	}
	return out
}

// VolumePoint sums one day's flows by kind.
type VolumePoint struct {
	Label          string  `json:"date"`
	Timestamp      int64   `json:"timestamp"`
	SupplyVolume   float64 `json:"supplyVolume"`
	WithdrawVolume float64 `json:"withdrawVolume"`
	BorrowVolume   float64 `json:"borrowVolume"`
	RepayVolume    float64 `json:"repayVolume"`
}

// VolumeSeries converts newest-first daily snapshots into oldest-first
// volumes.
func (b *Builder) VolumeSeries(daily []subgraph.DailySnapshot) []VolumePoint {
	out := make([]VolumePoint, 0, len(daily))
	for i := len(daily) - 1; i >= 0; i-- {
		snap := daily[i]
		out = append(out, VolumePoint{
			Label:          dayLabel(snap.Date),
			Timestamp:      snap.Date,
			SupplyVolume:   b.float(snap.SupplyVolume),
			WithdrawVolume: b.float(snap.WithdrawVolume),
			BorrowVolume:   b.float(snap.BorrowVolume),
			RepayVolume:    b.float(snap.RepayVolume),
		})
	}
	return out
}

// RatePoint is one interest rate snapshot with the liquidity it was taken
// at.
type RatePoint struct {
	Label         string  `json:"date"`
	Timestamp     int64   `json:"timestamp"`
	SupplyAPY     float64 `json:"supplyAPY"`
	BorrowAPY     float64 `json:"borrowAPY"`
	Utilization   float64 `json:"utilization"`
	TotalSupplied float64 `json:"totalSupplied"`
	TotalBorrowed float64 `json:"totalBorrowed"`
}

// RateSeries converts newest-first rate snapshots into an oldest-first
// series, keeping only snapshots at or after start when start is positive.
func (b *Builder) RateSeries(rates []subgraph.RateSnapshot, start int64) []RatePoint {
	out := make([]RatePoint, 0, len(rates))
	for i := len(rates) - 1; i >= 0; i-- {
		snap := rates[i]
		if start > 0 && snap.Timestamp < start {
			continue
		}
		out = append(out, RatePoint{
			Label:         timeLabel(snap.Timestamp),
			Timestamp:     snap.Timestamp,
			SupplyAPY:     lending.BasisPointsToPercent(snap.SupplyAPY),
			BorrowAPY:     lending.BasisPointsToPercent(snap.BorrowAPY),
			Utilization:   lending.BasisPointsToPercent(snap.UtilizationRate),
			TotalSupplied: b.float(snap.TotalLiquidity),
			TotalBorrowed: b.float(snap.TotalDebt),
		})
	}
	return out
}

// IndexPoint carries the cumulative borrow and supply indexes as plain
// ratios (1.05 for an index of 1.05e18).
type IndexPoint struct {
	Label       string  `json:"date"`
	Timestamp   int64   `json:"timestamp"`
	BorrowIndex float64 `json:"borrowIndex"`
	SupplyIndex float64 `json:"supplyIndex"`
}

// IndexSeries converts newest-first rate snapshots into an oldest-first
// index series, filtered like RateSeries.
func (b *Builder) IndexSeries(rates []subgraph.RateSnapshot, start int64) []IndexPoint {
	out := make([]IndexPoint, 0, len(rates))
	for i := len(rates) - 1; i >= 0; i-- {
		snap := rates[i]
		if start > 0 && snap.Timestamp < start {
			continue
		}
		out = append(out, IndexPoint{
			Label:       timeLabel(snap.Timestamp),
			Timestamp:   snap.Timestamp,
			BorrowIndex: lending.ToFloat(snap.BorrowIndex, lending.DefaultDecimals),
			SupplyIndex: lending.ToFloat(snap.SupplyIndex, lending.DefaultDecimals),
		})
	}
	return out
}
