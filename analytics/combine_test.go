package analytics

import (
	"testing"

	"github.com/stretchr/testify/require"

	"infrafi/native/lending"
	"infrafi/subgraph"
)

func rate(id string, block uint64, supply, borrow, util lending.BasisPoints) subgraph.RateSnapshot {
	one := lending.ParseDecimalString("1", 18)
	return subgraph.RateSnapshot{
		ID:              id,
		BlockNumber:     block,
		Timestamp:       int64(block) * 10,
		SupplyAPY:       supply,
		BorrowAPY:       borrow,
		UtilizationRate: util,
		BorrowIndex:     one,
		SupplyIndex:     one,
		TotalLiquidity:  tokens(block),
		TotalDebt:       tokens(block / 2),
	}
}

func TestCombineEventsBracketsByBlock(t *testing.T) {
	events := []subgraph.Event{
		{ID: "b", Kind: lending.EventBorrow, User: "0x1234567890abcdef", Timestamp: 1_700_000_060, BlockNumber: 20, TxHash: "0xbb", Amount: tokens(5)},
		{ID: "a", Kind: lending.EventSupply, User: "0xabc", Timestamp: 1_700_000_000, BlockNumber: 10, TxHash: "0xaa", Amount: lending.ParseDecimalString("1.2345675", 18)},
	}
	rates := []subgraph.RateSnapshot{
		rate("r20", 20, 350, 600, 5_000),
		rate("r10", 10, 300, 500, 4_000),
		rate("r5", 5, 250, 450, 3_000),
	}

	rows := CombineEvents(events, rates)
	require.Len(t, rows, 2)

	first := rows[0]
	require.Equal(t, uint64(10), first.BlockNumber)
	require.Equal(t, "2023-11-14T22:13:20.000Z", first.DateTime)
	require.Equal(t, "Supply", first.EventType)
	require.Equal(t, "0xabc...", first.User)
	require.Equal(t, "1.234568", first.Amount)
	require.Equal(t, "2.5000%", first.SupplyAPYBefore)
	require.Equal(t, "3.0000%", first.SupplyAPYAfter)
	require.Equal(t, "+0.5000%", first.SupplyAPYChange)
	require.Equal(t, "40.0000%", first.UtilizationAfter)
	require.Equal(t, "1.000000000000000000", first.BorrowIndexBefore)
	require.Equal(t, "10.000000", first.TotalLiquidity)
	require.Equal(t, "5.000000", first.TotalDebt)
	require.Zero(t, first.SecondsSinceLastEvent)

	second := rows[1]
	require.Equal(t, "Borrow", second.EventType)
	require.Equal(t, "0x12345678...", second.User)
	require.Equal(t, "5.000000", second.Amount)
	require.Equal(t, "3.0000%", second.SupplyAPYBefore)
	require.Equal(t, "3.5000%", second.SupplyAPYAfter)
	require.Equal(t, "+1.0000%", second.BorrowAPYChange)
	require.Equal(t, int64(60), second.SecondsSinceLastEvent)
}

func TestCombineEventsMissingSnapshots(t *testing.T) {
	events := []subgraph.Event{
		{ID: "1", Kind: lending.EventRepay, User: "0xabc", Timestamp: 50, BlockNumber: 5, Amount: tokens(1)},
		{ID: "2", Kind: lending.EventNodeWithdrawal, User: "0xabc", Timestamp: 90, BlockNumber: 9, AssetValue: lending.Zero()},
	}
	rates := []subgraph.RateSnapshot{rate("r7", 7, 400, 700, 6_000)}

	rows := CombineEvents(events, rates)
	require.Len(t, rows, 2)

	require.Equal(t, NotAvailable, rows[0].SupplyAPYBefore)
	require.Equal(t, "4.0000%", rows[0].SupplyAPYAfter)
	require.Equal(t, NotAvailable, rows[0].SupplyAPYChange)
	require.Equal(t, "7.000000", rows[0].TotalLiquidity)

	require.Equal(t, "NodeWithdrawal", rows[1].EventType)
	require.Equal(t, NotAvailable, rows[1].Amount)
	require.Equal(t, "4.0000%", rows[1].SupplyAPYBefore)
	require.Equal(t, NotAvailable, rows[1].SupplyAPYAfter)
	require.Equal(t, "7.000000", rows[1].TotalLiquidity, "falls back to the earlier snapshot")
	require.Equal(t, int64(40), rows[1].SecondsSinceLastEvent)
}

func TestCombineEventsNegativeChangeAndTies(t *testing.T) {
	events := []subgraph.Event{{ID: "1", Kind: lending.EventWithdraw, User: "0xabc", Timestamp: 100, BlockNumber: 10, Amount: tokens(1)}}
	rates := []subgraph.RateSnapshot{
		rate("first", 8, 500, 900, 7_000),
		rate("second", 8, 100, 100, 1_000),
		rate("after-a", 10, 450, 850, 6_500),
		rate("after-b", 10, 0, 0, 0),
	}

	rows := CombineEvents(events, rates)
	require.Len(t, rows, 1)
	require.Equal(t, "5.0000%", rows[0].SupplyAPYBefore)
	require.Equal(t, "4.5000%", rows[0].SupplyAPYAfter)
	require.Equal(t, "-0.5000%", rows[0].SupplyAPYChange)
	require.Equal(t, "-0.5000%", rows[0].BorrowAPYChange)
}

func TestCombineEventsNodeDeposit(t *testing.T) {
	events := []subgraph.Event{{ID: "1", Kind: lending.EventNodeDeposit, User: "0xabc", Timestamp: 1, BlockNumber: 1, Amount: lending.Zero(), AssetValue: tokens(9)}}
	rows := CombineEvents(events, nil)
	require.Equal(t, "NodeDeposit", rows[0].EventType)
	require.Equal(t, "9.000000", rows[0].Amount)
	require.Equal(t, NotAvailable, rows[0].TotalLiquidity)
	require.Equal(t, NotAvailable, rows[0].BorrowIndexAfter)
}
