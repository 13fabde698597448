package server

import (
	"strings"
	"time"

	"infrafi/chain"
	"infrafi/native/lending"
	"infrafi/subgraph"
)

// statsView is the JSON shape of a live vault sample.
type statsView struct {
	TotalSupplied        string                    `json:"totalSupplied"`
	TotalBorrowed        string                    `json:"totalBorrowed"`
	Utilization          string                    `json:"utilization"`
	SupplyAPY            string                    `json:"supplyAPY"`
	BorrowAPY            string                    `json:"borrowAPY"`
	UtilizationBps       lending.BasisPoints       `json:"utilizationBps"`
	SupplyAPYBps         lending.BasisPoints       `json:"supplyAPYBps"`
	BorrowAPYBps         lending.BasisPoints       `json:"borrowAPYBps"`
	MaxLTV               lending.BasisPoints       `json:"maxLTV"`
	LiquidationThreshold lending.BasisPoints       `json:"liquidationThreshold"`
	RateModel            lending.InterestRateModel `json:"interestRateModel"`
	SupplyIndex          string                    `json:"supplyIndex"`
	BorrowIndex          string                    `json:"borrowIndex"`
	Degraded             []string                  `json:"degraded,omitempty"`
	FetchedAt            time.Time                 `json:"fetchedAt"`
}

func newStatsView(stats chain.ProtocolStats, decimals uint8) statsView {
	return statsView{
		TotalSupplied:        lending.ToDecimalString(stats.TotalSupplied, decimals),
		TotalBorrowed:        lending.ToDecimalString(stats.TotalBorrowed, decimals),
		Utilization:          lending.FormatUtilization(stats.UtilizationRate),
		SupplyAPY:            lending.FormatAPY(stats.SupplyAPY),
		BorrowAPY:            lending.FormatAPY(stats.BorrowAPY),
		UtilizationBps:       stats.UtilizationRate,
		SupplyAPYBps:         stats.SupplyAPY,
		BorrowAPYBps:         stats.BorrowAPY,
		MaxLTV:               stats.MaxLTV,
		LiquidationThreshold: stats.LiquidationThreshold,
		RateModel:            stats.RateModel,
		SupplyIndex:          lending.FormatIndex(stats.SupplyIndex),
		BorrowIndex:          lending.FormatIndex(stats.BorrowIndex),
		Degraded:             stats.Degraded,
		FetchedAt:            stats.FetchedAt.UTC(),
	}
}

// protocolView is the indexed protocol entity plus, when available, the
// latest live sample.
type protocolView struct {
	TotalSupplied        string              `json:"totalSupplied"`
	TotalBorrowed        string              `json:"totalBorrowed"`
	TotalCollateral      string              `json:"totalCollateral"`
	TotalSuppliedDisplay string              `json:"totalSuppliedDisplay"`
	TotalBorrowedDisplay string              `json:"totalBorrowedDisplay"`
	SupplyAPY            string              `json:"supplyAPY"`
	BorrowAPY            string              `json:"borrowAPY"`
	Utilization          string              `json:"utilization"`
	UtilizationBps       lending.BasisPoints `json:"utilizationBps"`
	TotalNodes           uint64              `json:"totalNodesDeposited"`
	TotalUsers           uint64              `json:"totalUsers"`
	TotalLenders         uint64              `json:"totalLenders"`
	TotalBorrowers       uint64              `json:"totalBorrowers"`
	LastUpdate           int64               `json:"lastUpdateTimestamp"`
	Live                 *statsView          `json:"live,omitempty"`
}

func newProtocolView(p subgraph.ProtocolSnapshot, decimals uint8) protocolView {
	return protocolView{
		TotalSupplied:        lending.ToDecimalString(p.TotalLiquidity, decimals),
		TotalBorrowed:        lending.ToDecimalString(p.TotalDebt, decimals),
		TotalCollateral:      lending.ToDecimalString(p.TotalCollateralValue, decimals),
		TotalSuppliedDisplay: lending.ToAbbreviatedString(p.TotalLiquidity, decimals),
		TotalBorrowedDisplay: lending.ToAbbreviatedString(p.TotalDebt, decimals),
		SupplyAPY:            lending.FormatAPY(p.SupplyAPY),
		BorrowAPY:            lending.FormatAPY(p.BorrowAPY),
		Utilization:          lending.FormatUtilization(p.UtilizationRate),
		UtilizationBps:       p.UtilizationRate,
		TotalNodes:           p.TotalNodesDeposited,
		TotalUsers:           p.TotalUsers,
		TotalLenders:         p.TotalLenders,
		TotalBorrowers:       p.TotalBorrowers,
		LastUpdate:           p.LastUpdateTimestamp,
	}
}

// snapshotFromStats stands a live sample in for the indexed protocol entity
// when the indexer is unavailable.
func snapshotFromStats(stats chain.ProtocolStats) subgraph.ProtocolSnapshot {
	return subgraph.ProtocolSnapshot{
		TotalLiquidity:      stats.TotalSupplied,
		TotalDebt:           stats.TotalBorrowed,
		SupplyAPY:           stats.SupplyAPY,
		BorrowAPY:           stats.BorrowAPY,
		UtilizationRate:     stats.UtilizationRate,
		LastUpdateTimestamp: stats.FetchedAt.Unix(),
	}
}

type paramsView struct {
	Params lending.Params       `json:"params"`
	Curve  []lending.CurvePoint `json:"rateCurve"`
}

type eventView struct {
	ID          string            `json:"id"`
	Type        lending.EventKind `json:"type"`
	User        string            `json:"user"`
	Timestamp   int64             `json:"timestamp"`
	BlockNumber uint64            `json:"blockNumber"`
	TxHash      string            `json:"transactionHash"`
	Amount      string            `json:"amount"`
	Principal   string            `json:"principal,omitempty"`
	Interest    string            `json:"interest,omitempty"`
	NodeID      string            `json:"nodeId,omitempty"`
	NodeType    string            `json:"nodeType,omitempty"`
	AssetValue  string            `json:"assetValue,omitempty"`
}

func optionalAmount(v lending.TokenAmount, decimals uint8) string {
	if v == nil {
		return ""
	}
	return lending.ToDecimalString(v, decimals)
}

func newEventView(e subgraph.Event, decimals uint8) eventView {
	return eventView{
		ID:          e.ID,
		Type:        e.Kind,
		User:        e.User,
		Timestamp:   e.Timestamp,
		BlockNumber: e.BlockNumber,
		TxHash:      e.TxHash,
		Amount:      lending.ToDecimalString(e.Value(), decimals),
		Principal:   optionalAmount(e.Principal, decimals),
		Interest:    optionalAmount(e.Interest, decimals),
		NodeID:      e.NodeID,
		NodeType:    e.NodeType,
		AssetValue:  optionalAmount(e.AssetValue, decimals),
	}
}

type timelineView struct {
	Address string      `json:"address"`
	Events  []eventView `json:"events"`
}

type onChainView struct {
	WalletBalance  string          `json:"walletBalance"`
	Allowance      string          `json:"allowance"`
	Supplied       string          `json:"supplied"`
	SupplyInterest string          `json:"supplyInterest"`
	Principal      string          `json:"principal"`
	BorrowInterest string          `json:"borrowInterest"`
	Debt           string          `json:"debt"`
	MaxBorrow      string          `json:"maxBorrow"`
	DepositedNodes []chain.NodeRef `json:"depositedNodes"`
	Degraded       []string        `json:"degraded,omitempty"`
}

func newOnChainView(p chain.UserPosition, decimals uint8) *onChainView {
	nodes := p.DepositedNodes
	if nodes == nil {
		nodes = []chain.NodeRef{}
	}
	return &onChainView{
		WalletBalance:  lending.ToDecimalString(p.WalletBalance, decimals),
		Allowance:      lending.ToDecimalString(p.Allowance, decimals),
		Supplied:       lending.ToDecimalString(p.Supplied, decimals),
		SupplyInterest: lending.ToDecimalString(p.SupplyInterest, decimals),
		Principal:      lending.ToDecimalString(p.Principal, decimals),
		BorrowInterest: lending.ToDecimalString(p.BorrowInterest, decimals),
		Debt:           lending.ToDecimalString(p.Debt(), decimals),
		MaxBorrow:      lending.ToDecimalString(p.MaxBorrow, decimals),
		DepositedNodes: nodes,
		Degraded:       p.Degraded,
	}
}

// nodeView is one OORT node owned by a user.
type nodeView struct {
	Address       string `json:"address"`
	Owner         string `json:"owner"`
	NodeType      uint64 `json:"nodeType"`
	Pledge        string `json:"pledge"`
	MaxPledge     string `json:"maxPledge"`
	LockedRewards string `json:"lockedRewards"`
	TotalRewards  string `json:"totalRewards"`
	Balance       string `json:"balance"`
	EndTime       int64  `json:"endTime"`
	LockTime      int64  `json:"lockTime"`
	Active        bool   `json:"active"`
}

type nodesView struct {
	Owner        string     `json:"owner"`
	TotalBalance string     `json:"totalBalance"`
	Nodes        []nodeView `json:"nodes"`
}

func newNodesView(owner string, nodes []chain.OortNode, decimals uint8) nodesView {
	view := nodesView{Owner: owner, Nodes: make([]nodeView, 0, len(nodes))}
	total := lending.Zero()
	for _, n := range nodes {
		total = lending.SaturatingAdd(total, n.Balance)
		view.Nodes = append(view.Nodes, nodeView{
			Address:       strings.ToLower(n.Address.Hex()),
			Owner:         strings.ToLower(n.Owner.Hex()),
			NodeType:      n.NodeType,
			Pledge:        lending.ToDecimalString(n.Pledge, decimals),
			MaxPledge:     lending.ToDecimalString(n.MaxPledge, decimals),
			LockedRewards: lending.ToDecimalString(n.LockedRewards, decimals),
			TotalRewards:  lending.ToDecimalString(n.TotalRewards, decimals),
			Balance:       lending.ToDecimalString(n.Balance, decimals),
			EndTime:       n.EndTime,
			LockTime:      n.LockTime,
			Active:        n.Active,
		})
	}
	view.TotalBalance = lending.ToDecimalString(total, decimals)
	return view
}
