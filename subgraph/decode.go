package subgraph

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"infrafi/native/lending"
)

// defaultIndex is used when a rate snapshot predates index tracking.
const defaultIndex = "1000000000000000000"

// Drop reasons recorded in a DecodeReport.
const (
	reasonMissingTimestamp = "missing_timestamp"
	reasonInvalidTimestamp = "invalid_timestamp"
	reasonInvalidAmount    = "invalid_amount"
	reasonInvalidBlock     = "invalid_block"
	reasonUnknownKind      = "unknown_kind"
)

var errNotScalar = errors.New("subgraph: value is not a scalar")

// scalar accepts the string or numeric encodings the indexer uses for BigInt,
// BigDecimal and Int fields. null decodes to the empty string.
type scalar string

func (s *scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*s = ""
	case len(data) > 0 && data[0] == '"':
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = scalar(strings.TrimSpace(str))
	case len(data) > 0 && (data[0] == '-' || (data[0] >= '0' && data[0] <= '9')):
		*s = scalar(data)
	default:
		return errNotScalar
	}
	return nil
}

func (s scalar) empty() bool { return s == "" }

func (s scalar) int64() (int64, bool) {
	v, err := strconv.ParseInt(string(s), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (s scalar) uint64() (uint64, bool) {
	v, err := strconv.ParseUint(string(s), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// count reads a counter field; missing or malformed values are zero.
func (s scalar) count() uint64 {
	v, _ := s.uint64()
	return v
}

// bps reads a rate field; missing or malformed values are zero.
func (s scalar) bps() lending.BasisPoints {
	return lending.BasisPoints(s.count())
}

// amount reads a BigInt field. Missing values are zero with ok=true.
func (s scalar) amount() (lending.TokenAmount, bool) {
	if s.empty() {
		return lending.Zero(), true
	}
	return lending.ParseRaw(string(s))
}

// amountOrZero reads an aggregate field where a bad value must not discard
// the whole record.
func (s scalar) amountOrZero() lending.TokenAmount {
	v, _ := s.amount()
	return v
}

type rawUserRef struct {
	Address string `json:"address"`
}

type rawEvent struct {
	ID              string      `json:"id"`
	User            *rawUserRef `json:"user"`
	Amount          scalar      `json:"amount"`
	PrincipalAmount scalar      `json:"principalAmount"`
	InterestAmount  scalar      `json:"interestAmount"`
	NodeID          scalar      `json:"nodeId"`
	NodeType        scalar      `json:"nodeType"`
	AssetValue      scalar      `json:"assetValue"`
	Timestamp       scalar      `json:"timestamp"`
	BlockNumber     scalar      `json:"blockNumber"`
	TransactionHash string      `json:"transactionHash"`
}

type rawProtocol struct {
	TotalLiquidity       scalar `json:"totalLiquidity"`
	TotalDebt            scalar `json:"totalDebt"`
	TotalCollateralValue scalar `json:"totalCollateralValue"`
	TotalNodesDeposited  scalar `json:"totalNodesDeposited"`
	SupplyAPY            scalar `json:"supplyAPY"`
	BorrowAPY            scalar `json:"borrowAPY"`
	UtilizationRate      scalar `json:"utilizationRate"`
	TotalUsers           scalar `json:"totalUsers"`
	TotalLenders         scalar `json:"totalLenders"`
	TotalBorrowers       scalar `json:"totalBorrowers"`
	LastUpdateTimestamp  scalar `json:"lastUpdateTimestamp"`
}

type rawUser struct {
	Address                   string `json:"address"`
	TotalSupplied             scalar `json:"totalSupplied"`
	TotalSupplyInterest       scalar `json:"totalSupplyInterest"`
	TotalBorrowed             scalar `json:"totalBorrowed"`
	TotalBorrowInterest       scalar `json:"totalBorrowInterest"`
	CollateralValue           scalar `json:"collateralValue"`
	DepositedNodesCount       scalar `json:"depositedNodesCount"`
	IsLender                  bool   `json:"isLender"`
	IsBorrower                bool   `json:"isBorrower"`
	FirstInteractionTimestamp scalar `json:"firstInteractionTimestamp"`
	LastInteractionTimestamp  scalar `json:"lastInteractionTimestamp"`

	SupplyEvents    []rawEvent `json:"supplyEvents"`
	WithdrawEvents  []rawEvent `json:"withdrawEvents"`
	BorrowEvents    []rawEvent `json:"borrowEvents"`
	RepayEvents     []rawEvent `json:"repayEvents"`
	NodeDeposits    []rawEvent `json:"nodeDeposits"`
	NodeWithdrawals []rawEvent `json:"nodeWithdrawals"`
}

type rawDailySnapshot struct {
	Date                 scalar `json:"date"`
	TotalLiquidity       scalar `json:"totalLiquidity"`
	TotalDebt            scalar `json:"totalDebt"`
	TotalCollateralValue scalar `json:"totalCollateralValue"`
	SupplyAPY            scalar `json:"supplyAPY"`
	BorrowAPY            scalar `json:"borrowAPY"`
	UtilizationRate      scalar `json:"utilizationRate"`
	ActiveUsers          scalar `json:"activeUsers"`
	ActiveLenders        scalar `json:"activeLenders"`
	ActiveBorrowers      scalar `json:"activeBorrowers"`
	TotalNodesDeposited  scalar `json:"totalNodesDeposited"`
	SuppliesCount        scalar `json:"suppliesCount"`
	WithdrawalsCount     scalar `json:"withdrawalsCount"`
	BorrowsCount         scalar `json:"borrowsCount"`
	RepaysCount          scalar `json:"repaysCount"`
	NodeDepositsCount    scalar `json:"nodeDepositsCount"`
	NodeWithdrawalsCount scalar `json:"nodeWithdrawalsCount"`
	SupplyVolume         scalar `json:"supplyVolume"`
	WithdrawVolume       scalar `json:"withdrawVolume"`
	BorrowVolume         scalar `json:"borrowVolume"`
	RepayVolume          scalar `json:"repayVolume"`
}

type rawRateSnapshot struct {
	ID              string `json:"id"`
	Timestamp       scalar `json:"timestamp"`
	BlockNumber     scalar `json:"blockNumber"`
	SupplyAPY       scalar `json:"supplyAPY"`
	BorrowAPY       scalar `json:"borrowAPY"`
	UtilizationRate scalar `json:"utilizationRate"`
	BorrowIndex     scalar `json:"borrowIndex"`
	SupplyIndex     scalar `json:"supplyIndex"`
	TotalLiquidity  scalar `json:"totalLiquidity"`
	TotalDebt       scalar `json:"totalDebt"`
}

// DecodeReport counts records accepted and dropped while decoding a response.
type DecodeReport struct {
	Decoded int
	Dropped map[string]int
}

func (r *DecodeReport) drop(reason string) {
	if r.Dropped == nil {
		r.Dropped = make(map[string]int)
	}
	r.Dropped[reason]++
}

// DroppedTotal returns the number of discarded records.
func (r DecodeReport) DroppedTotal() int {
	total := 0
	for _, n := range r.Dropped {
		total += n
	}
	return total
}

// Merge adds other's counts to r.
func (r *DecodeReport) Merge(other DecodeReport) {
	r.Decoded += other.Decoded
	for reason, n := range other.Dropped {
		if r.Dropped == nil {
			r.Dropped = make(map[string]int)
		}
		r.Dropped[reason] += n
	}
}

// Log emits a single warning when records were dropped.
func (r DecodeReport) Log(logger *slog.Logger, query string) {
	if logger == nil || r.DroppedTotal() == 0 {
		return
	}
	reasons := make([]string, 0, len(r.Dropped))
	for reason := range r.Dropped {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	attrs := []any{slog.String("query", query), slog.Int("decoded", r.Decoded)}
	for _, reason := range reasons {
		attrs = append(attrs, slog.Int(reason, r.Dropped[reason]))
	}
	logger.Warn("subgraph records dropped", attrs...)
}

// decodeEvent validates a raw event of the given kind. fallbackUser is used
// when the record was fetched through a user entity and carries no user
// reference of its own.
func decodeEvent(raw rawEvent, kind lending.EventKind, fallbackUser string, report *DecodeReport) (Event, bool) {
	if kind == lending.EventUnknown {
		report.drop(reasonUnknownKind)
		return Event{}, false
	}
	if raw.Timestamp.empty() {
		report.drop(reasonMissingTimestamp)
		return Event{}, false
	}
	ts, ok := raw.Timestamp.int64()
	if !ok || ts < 0 {
		report.drop(reasonInvalidTimestamp)
		return Event{}, false
	}
	var block uint64
	if !raw.BlockNumber.empty() {
		if block, ok = raw.BlockNumber.uint64(); !ok {
			report.drop(reasonInvalidBlock)
			return Event{}, false
		}
	}

	amount, okAmount := raw.Amount.amount()
	principal, okPrincipal := raw.PrincipalAmount.amount()
	interest, okInterest := raw.InterestAmount.amount()
	asset, okAsset := raw.AssetValue.amount()
	if !okAmount || !okPrincipal || !okInterest || !okAsset {
		report.drop(reasonInvalidAmount)
		return Event{}, false
	}
	switch kind {
	case lending.EventSupply, lending.EventWithdraw, lending.EventBorrow, lending.EventRepay:
		if raw.Amount.empty() {
			report.drop(reasonInvalidAmount)
			return Event{}, false
		}
	case lending.EventNodeDeposit:
		if raw.AssetValue.empty() {
			report.drop(reasonInvalidAmount)
			return Event{}, false
		}
	}

	user := fallbackUser
	if raw.User != nil && raw.User.Address != "" {
		user = raw.User.Address
	}
	report.Decoded++
	return Event{
		ID:          raw.ID,
		Kind:        kind,
		User:        strings.ToLower(user),
		Timestamp:   ts,
		BlockNumber: block,
		TxHash:      raw.TransactionHash,
		Amount:      amount,
		Principal:   principal,
		Interest:    interest,
		NodeID:      string(raw.NodeID),
		NodeType:    string(raw.NodeType),
		AssetValue:  asset,
	}, true
}

// decodeEvents validates a collection of raw events of one kind.
func decodeEvents(raws []rawEvent, kind lending.EventKind, fallbackUser string, report *DecodeReport) []Event {
	out := make([]Event, 0, len(raws))
	for _, raw := range raws {
		if ev, ok := decodeEvent(raw, kind, fallbackUser, report); ok {
			out = append(out, ev)
		}
	}
	return out
}

// DecodeEventCollections decodes a GraphQL data object whose keys are event
// collection names into a single slice sorted oldest first.
func DecodeEventCollections(data map[string][]json.RawMessage, fallbackUser string) ([]Event, DecodeReport) {
	var report DecodeReport
	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)

	var events []Event
	for _, name := range names {
		kind := ParseEventKind(name)
		for _, msg := range data[name] {
			var raw rawEvent
			if err := json.Unmarshal(msg, &raw); err != nil {
				report.drop(reasonInvalidAmount)
				continue
			}
			if ev, ok := decodeEvent(raw, kind, fallbackUser, &report); ok {
				events = append(events, ev)
			}
		}
	}
	SortEvents(events)
	return events, report
}

func decodeProtocol(raw rawProtocol) ProtocolSnapshot {
	updated, _ := raw.LastUpdateTimestamp.int64()
	return ProtocolSnapshot{
		TotalLiquidity:       raw.TotalLiquidity.amountOrZero(),
		TotalDebt:            raw.TotalDebt.amountOrZero(),
		TotalCollateralValue: raw.TotalCollateralValue.amountOrZero(),
		TotalNodesDeposited:  raw.TotalNodesDeposited.count(),
		SupplyAPY:            raw.SupplyAPY.bps(),
		BorrowAPY:            raw.BorrowAPY.bps(),
		UtilizationRate:      raw.UtilizationRate.bps(),
		TotalUsers:           raw.TotalUsers.count(),
		TotalLenders:         raw.TotalLenders.count(),
		TotalBorrowers:       raw.TotalBorrowers.count(),
		LastUpdateTimestamp:  updated,
	}
}

func decodeUser(raw rawUser) UserSnapshot {
	first, _ := raw.FirstInteractionTimestamp.int64()
	last, _ := raw.LastInteractionTimestamp.int64()
	return UserSnapshot{
		Address:             strings.ToLower(raw.Address),
		TotalSupplied:       raw.TotalSupplied.amountOrZero(),
		TotalSupplyInterest: raw.TotalSupplyInterest.amountOrZero(),
		TotalBorrowed:       raw.TotalBorrowed.amountOrZero(),
		TotalBorrowInterest: raw.TotalBorrowInterest.amountOrZero(),
		CollateralValue:     raw.CollateralValue.amountOrZero(),
		DepositedNodesCount: raw.DepositedNodesCount.count(),
		IsLender:            raw.IsLender,
		IsBorrower:          raw.IsBorrower,
		FirstInteraction:    first,
		LastInteraction:     last,
	}
}

// userEvents flattens the collections nested under a user entity.
func userEvents(raw rawUser, report *DecodeReport) []Event {
	user := raw.Address
	var events []Event
	events = append(events, decodeEvents(raw.SupplyEvents, lending.EventSupply, user, report)...)
	events = append(events, decodeEvents(raw.WithdrawEvents, lending.EventWithdraw, user, report)...)
	events = append(events, decodeEvents(raw.BorrowEvents, lending.EventBorrow, user, report)...)
	events = append(events, decodeEvents(raw.RepayEvents, lending.EventRepay, user, report)...)
	events = append(events, decodeEvents(raw.NodeDeposits, lending.EventNodeDeposit, user, report)...)
	events = append(events, decodeEvents(raw.NodeWithdrawals, lending.EventNodeWithdrawal, user, report)...)
	return events
}

func decodeDailySnapshots(raws []rawDailySnapshot, report *DecodeReport) []DailySnapshot {
	out := make([]DailySnapshot, 0, len(raws))
	for _, raw := range raws {
		if raw.Date.empty() {
			report.drop(reasonMissingTimestamp)
			continue
		}
		date, ok := raw.Date.int64()
		if !ok || date < 0 {
			report.drop(reasonInvalidTimestamp)
			continue
		}
		report.Decoded++
		out = append(out, DailySnapshot{
			Date:                 date,
			TotalLiquidity:       raw.TotalLiquidity.amountOrZero(),
			TotalDebt:            raw.TotalDebt.amountOrZero(),
			TotalCollateralValue: raw.TotalCollateralValue.amountOrZero(),
			SupplyAPY:            raw.SupplyAPY.bps(),
			BorrowAPY:            raw.BorrowAPY.bps(),
			UtilizationRate:      raw.UtilizationRate.bps(),
			ActiveUsers:          raw.ActiveUsers.count(),
			ActiveLenders:        raw.ActiveLenders.count(),
			ActiveBorrowers:      raw.ActiveBorrowers.count(),
			TotalNodesDeposited:  raw.TotalNodesDeposited.count(),
			Counts: EventCounts{
				Supplies:        raw.SuppliesCount.count(),
				Withdrawals:     raw.WithdrawalsCount.count(),
				Borrows:         raw.BorrowsCount.count(),
				Repays:          raw.RepaysCount.count(),
				NodeDeposits:    raw.NodeDepositsCount.count(),
				NodeWithdrawals: raw.NodeWithdrawalsCount.count(),
			},
			SupplyVolume:   raw.SupplyVolume.amountOrZero(),
			WithdrawVolume: raw.WithdrawVolume.amountOrZero(),
			BorrowVolume:   raw.BorrowVolume.amountOrZero(),
			RepayVolume:    raw.RepayVolume.amountOrZero(),
		})
	}
	return out
}

func decodeRateSnapshots(raws []rawRateSnapshot, report *DecodeReport) []RateSnapshot {
	out := make([]RateSnapshot, 0, len(raws))
	for _, raw := range raws {
		if raw.Timestamp.empty() {
			report.drop(reasonMissingTimestamp)
			continue
		}
		ts, ok := raw.Timestamp.int64()
		if !ok || ts < 0 {
			report.drop(reasonInvalidTimestamp)
			continue
		}
		block, ok := raw.BlockNumber.uint64()
		if !ok && !raw.BlockNumber.empty() {
			report.drop(reasonInvalidBlock)
			continue
		}
		borrowIndex, supplyIndex := raw.BorrowIndex, raw.SupplyIndex
		if borrowIndex.empty() {
			borrowIndex = defaultIndex
		}
		if supplyIndex.empty() {
			supplyIndex = defaultIndex
		}
		report.Decoded++
		out = append(out, RateSnapshot{
			ID:              raw.ID,
			Timestamp:       ts,
			BlockNumber:     block,
			SupplyAPY:       raw.SupplyAPY.bps(),
			BorrowAPY:       raw.BorrowAPY.bps(),
			UtilizationRate: raw.UtilizationRate.bps(),
			BorrowIndex:     borrowIndex.amountOrZero(),
			SupplyIndex:     supplyIndex.amountOrZero(),
			TotalLiquidity:  raw.TotalLiquidity.amountOrZero(),
			TotalDebt:       raw.TotalDebt.amountOrZero(),
		})
	}
	return out
}

// mergeEvents unions event slices by id, keeping the first occurrence, and
// returns them oldest first.
func mergeEvents(sets ...[]Event) []Event {
	seen := make(map[string]struct{})
	var out []Event
	for _, set := range sets {
		for _, ev := range set {
			key := ev.Kind.String() + "/" + ev.ID
			if ev.ID == "" {
				key = ev.Kind.String() + "/" + ev.TxHash + "/" + strconv.FormatInt(ev.Timestamp, 10)
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, ev)
		}
	}
	SortEvents(out)
	return out
}
