package analytics

import (
	"infrafi/native/lending"
	"infrafi/subgraph"
)

// PerformancePoint is one step of a user's balance history.
type PerformancePoint struct {
	Label            string  `json:"date"`
	Timestamp        int64   `json:"timestamp"`
	Supplied         float64 `json:"supplied"`
	Borrowed         float64 `json:"borrowed"`
	Collateral       float64 `json:"collateral"`
	SupplyInterest   float64 `json:"supplyInterest"`
	BorrowInterest   float64 `json:"borrowInterest"`
	TotalSupplyValue float64 `json:"totalSupplyValue"`
	TotalDebtValue   float64 `json:"totalDebtValue"`
	NetPosition      float64 `json:"netPosition"`
}

type balances struct {
	supplied   lending.TokenAmount
	borrowed   lending.TokenAmount
	collateral lending.TokenAmount
}

func (s *balances) apply(e subgraph.Event) {
	v := e.Value()
	switch e.Kind {
	case lending.EventSupply:
		s.supplied = lending.SaturatingAdd(s.supplied, v)
	case lending.EventWithdraw:
		s.supplied = lending.SaturatingSub(s.supplied, v)
	case lending.EventBorrow:
		s.borrowed = lending.SaturatingAdd(s.borrowed, v)
	case lending.EventRepay:
		s.borrowed = lending.SaturatingSub(s.borrowed, v)
	case lending.EventNodeDeposit:
		s.collateral = lending.SaturatingAdd(s.collateral, v)
	case lending.EventNodeWithdrawal:
		// withdrawals carry no asset value so the collateral is cleared
		s.collateral = lending.Zero()
	}
}

func (b *Builder) performancePoint(label string, ts int64, s balances, supplyInterest, borrowInterest lending.TokenAmount) PerformancePoint {
	supplied := b.float(s.supplied)
	borrowed := b.float(s.borrowed)
	collateral := b.float(s.collateral)
	si := b.float(supplyInterest)
	bi := b.float(borrowInterest)
	return PerformancePoint{
		Label:            label,
		Timestamp:        ts,
		Supplied:         supplied,
		Borrowed:         borrowed,
		Collateral:       collateral,
		SupplyInterest:   si,
		BorrowInterest:   bi,
		TotalSupplyValue: supplied + si,
		TotalDebtValue:   borrowed + bi,
		NetPosition:      supplied + collateral + si - borrowed - bi,
	}
}

// UserPerformance replays a user's events into running balances. Interest
// at each event is estimated linearly from the user's current totals over
// the span between the first and last event. When user is known and the
// last event is more than an hour old, a "Now" point carries the actual
// interest figures. The input slice is not modified.
func (b *Builder) UserPerformance(events []subgraph.Event, user *subgraph.UserSnapshot) []PerformancePoint {
	if len(events) == 0 {
		return []PerformancePoint{}
	}
	ordered := append([]subgraph.Event(nil), events...)
	subgraph.SortEvents(ordered)

	var supplyInterest, borrowInterest lending.TokenAmount
	if user != nil {
		supplyInterest, borrowInterest = user.TotalSupplyInterest, user.TotalBorrowInterest
	}

	first := ordered[0].Timestamp
	last := ordered[len(ordered)-1].Timestamp
	span := last - first
	if span == 0 {
		span = 1
	}

	state := balances{supplied: lending.Zero(), borrowed: lending.Zero(), collateral: lending.Zero()}
	out := make([]PerformancePoint, 0, len(ordered)+1)
	for _, e := range ordered {
		state.apply(e)
		elapsed := e.Timestamp - first
		out = append(out, b.performancePoint(
			timeLabel(e.Timestamp),
			e.Timestamp,
			state,
			lending.InterpolateTimeWeightedInterest(supplyInterest, elapsed, span),
			lending.InterpolateTimeWeightedInterest(borrowInterest, elapsed, span),
		))
	}

	now := b.clock()
	if user != nil && stale(last, now) {
		out = append(out, b.performancePoint(NowLabel, now, state, supplyInterest, borrowInterest))
	}
	return out
}
