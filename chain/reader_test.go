package chain

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"infrafi/native/lending"
)

const (
	testVault    = "0x3479ccd3bF469a9DE57f2ddE8e63fb56B105D371"
	testToken    = "0x0809f1dC272F42F96F0B06cE5fFCEC97cB9FA82d"
	testRegistry = "0xA97E5185DC116588A85197f446Aa87cE558d254C"
	testUser     = "0x00000000000000000000000000000000000000aa"
)

// fakeCaller answers calls by method name using values packed through the
// same ABIs the reader uses.
type fakeCaller struct {
	t        *testing.T
	abis     []abi.ABI
	results  map[string][]any
	failures map[string]error

	mu     sync.Mutex
	inputs map[string][]any
}

func newFakeCaller(t *testing.T) *fakeCaller {
	t.Helper()
	var parsed []abi.ABI
	for _, def := range []string{nodeVaultABI, tokenABI, oortNodeABI} {
		a, err := abi.JSON(strings.NewReader(def))
		require.NoError(t, err)
		parsed = append(parsed, a)
	}
	return &fakeCaller{
		t:        t,
		abis:     parsed,
		results:  make(map[string][]any),
		failures: make(map[string]error),
		inputs:   make(map[string][]any),
	}
}

func (f *fakeCaller) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	for _, parsed := range f.abis {
		method, err := parsed.MethodById(call.Data[:4])
		if err != nil {
			continue
		}
		args, err := method.Inputs.Unpack(call.Data[4:])
		require.NoError(f.t, err)
		f.mu.Lock()
		f.inputs[method.Name] = args
		f.mu.Unlock()
		if err, ok := f.failures[method.Name]; ok {
			return nil, err
		}
		values, ok := f.results[method.Name]
		if !ok {
			return nil, nil
		}
		return method.Outputs.Pack(values...)
	}
	return nil, errors.New("unknown selector")
}

func wei(tokens int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(tokens), oneIndex)
}

func newTestReader(t *testing.T, caller Caller) *Reader {
	t.Helper()
	reader, err := NewReader(caller, Config{
		VaultAddress:        testVault,
		TokenAddress:        testToken,
		NodeRegistryAddress: testRegistry,
	})
	require.NoError(t, err)
	return reader
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("  " + testVault + " ")
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress(testVault), addr)

	for _, bad := range []string{"", "0x123", "not-an-address", testVault + "00"} {
		_, err := ParseAddress(bad)
		require.ErrorIs(t, err, ErrInvalidAddress, bad)
	}
}

func TestNewReaderRejectsBadConfig(t *testing.T) {
	caller := newFakeCaller(t)
	_, err := NewReader(nil, Config{VaultAddress: testVault, TokenAddress: testToken})
	require.Error(t, err)
	_, err = NewReader(caller, Config{VaultAddress: "0x1", TokenAddress: testToken})
	require.ErrorIs(t, err, ErrInvalidAddress)
	_, err = NewReader(caller, Config{VaultAddress: testVault, TokenAddress: testToken, NodeRegistryAddress: "bogus"})
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestProtocolStatsReadsVault(t *testing.T) {
	caller := newFakeCaller(t)
	caller.results["getTotalSupplied"] = []any{wei(1_000)}
	caller.results["getTotalDebt"] = []any{wei(600)}
	caller.results["getUtilizationRate"] = []any{big.NewInt(6_000)}
	caller.results["getCurrentBorrowAPY"] = []any{big.NewInt(780)}
	caller.results["getCurrentSupplyAPY"] = []any{big.NewInt(374)}
	caller.results["maxLTV"] = []any{big.NewInt(7_500)}
	caller.results["LIQUIDATION_THRESHOLD"] = []any{big.NewInt(8_000)}
	caller.results["getJumpRateModel"] = []any{big.NewInt(200), big.NewInt(900), big.NewInt(4_000), big.NewInt(8_500)}
	caller.results["supplyIndex"] = []any{new(big.Int).Add(oneIndex, big.NewInt(5))}
	caller.results["borrowIndex"] = []any{oneIndex}

	stats := newTestReader(t, caller).ProtocolStats(context.Background())
	require.Empty(t, stats.Degraded)
	require.Equal(t, "1000.000000000000000000", lending.ToDecimalString(stats.TotalSupplied, 18))
	require.Equal(t, "600.000000000000000000", lending.ToDecimalString(stats.TotalBorrowed, 18))
	require.Equal(t, lending.BasisPoints(6_000), stats.UtilizationRate)
	require.Equal(t, lending.BasisPoints(780), stats.BorrowAPY)
	require.Equal(t, lending.BasisPoints(374), stats.SupplyAPY)
	require.Equal(t, lending.InterestRateModel{BaseRate: 200, Multiplier: 900, Jump: 4_000, Kink: 8_500}, stats.RateModel)
	require.Equal(t, "1.000000000000000005", lending.ToDecimalString(stats.SupplyIndex, 18))
}

func TestProtocolStatsFallsBackPerGetter(t *testing.T) {
	caller := newFakeCaller(t)
	caller.results["getTotalSupplied"] = []any{wei(10)}
	caller.failures["getCurrentSupplyAPY"] = errors.New("execution reverted")
	caller.failures["getCurrentBorrowAPY"] = errors.New("execution reverted")
	caller.failures["getTotalDebt"] = errors.New("execution reverted")

	stats := newTestReader(t, caller).ProtocolStats(context.Background())
	defaults := lending.DefaultParams()
	require.Equal(t, "10.000000000000000000", lending.ToDecimalString(stats.TotalSupplied, 18))
	require.True(t, stats.TotalBorrowed.IsZero())
	require.Equal(t, lending.BasisPoints(300), stats.SupplyAPY)
	require.Equal(t, lending.BasisPoints(500), stats.BorrowAPY)
	require.Equal(t, defaults.MaxLTVBps, stats.MaxLTV)
	require.Equal(t, defaults.LiquidationThresholdBps, stats.LiquidationThreshold)
	require.Equal(t, defaults.RateModel, stats.RateModel)
	require.Contains(t, stats.Degraded, "getCurrentSupplyAPY")
	require.Contains(t, stats.Degraded, "getTotalDebt")
	require.Contains(t, stats.Degraded, "getJumpRateModel")
	require.NotContains(t, stats.Degraded, "getTotalSupplied")
}

func TestUserPosition(t *testing.T) {
	caller := newFakeCaller(t)
	caller.results["balanceOf"] = []any{wei(250)}
	caller.results["allowance"] = []any{wei(100)}
	caller.results["getLenderPosition"] = []any{struct {
		TotalSupplied         *big.Int
		AccruedInterest       *big.Int
		LastSupplyTime        *big.Int
		SupplyIndexCheckpoint *big.Int
	}{wei(500), wei(3), big.NewInt(1_700_000_000), oneIndex}}
	caller.results["getBorrowerPosition"] = []any{struct {
		TotalBorrowed         *big.Int
		AccruedInterest       *big.Int
		LastBorrowTime        *big.Int
		BorrowIndexCheckpoint *big.Int
		DepositedNodes        []struct {
			NodeId   *big.Int
			NodeType *big.Int
		}
	}{
		TotalBorrowed:         wei(60),
		AccruedInterest:       wei(15),
		LastBorrowTime:        big.NewInt(1_700_000_100),
		BorrowIndexCheckpoint: oneIndex,
		DepositedNodes: []struct {
			NodeId   *big.Int
			NodeType *big.Int
		}{{big.NewInt(42), big.NewInt(1)}},
	}}
	caller.results["getMaxBorrowAmount"] = []any{wei(20)}

	pos, err := newTestReader(t, caller).UserPosition(context.Background(), testUser)
	require.NoError(t, err)
	require.Empty(t, pos.Degraded)
	require.Equal(t, "250.000000000000000000", lending.ToDecimalString(pos.WalletBalance, 18))
	require.Equal(t, "500.000000000000000000", lending.ToDecimalString(pos.Supplied, 18))
	require.Equal(t, "75.000000000000000000", lending.ToDecimalString(pos.Debt(), 18))
	require.Equal(t, "20.000000000000000000", lending.ToDecimalString(pos.MaxBorrow, 18))
	require.Equal(t, []NodeRef{{NodeID: "42", NodeType: "1"}}, pos.DepositedNodes)

	spender := caller.inputs["allowance"][1].(common.Address)
	require.Equal(t, common.HexToAddress(testVault), spender)
}

func TestUserPositionDegradesIndependently(t *testing.T) {
	caller := newFakeCaller(t)
	caller.results["balanceOf"] = []any{wei(1)}
	caller.failures["getBorrowerPosition"] = errors.New("boom")

	pos, err := newTestReader(t, caller).UserPosition(context.Background(), testUser)
	require.NoError(t, err)
	require.Equal(t, "1.000000000000000000", lending.ToDecimalString(pos.WalletBalance, 18))
	require.True(t, pos.Debt().IsZero())
	require.Contains(t, pos.Degraded, "getBorrowerPosition")
	// unanswered getters return empty data and degrade too
	require.Contains(t, pos.Degraded, "getLenderPosition")
}

func TestUserPositionInvalidAddress(t *testing.T) {
	_, err := newTestReader(t, newFakeCaller(t)).UserPosition(context.Background(), "0xnope")
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestOwnerNodes(t *testing.T) {
	caller := newFakeCaller(t)
	node := common.HexToAddress("0x00000000000000000000000000000000000000b1")
	caller.results["getOwnerNodeList"] = []any{[]common.Address{node}}
	caller.results["nodeDataInfo"] = []any{nodeDataTuple{
		OwnerAddress:  common.HexToAddress(testUser),
		NodeAddress:   node,
		Pledge:        wei(100),
		MaxPledge:     wei(200),
		EndTime:       big.NewInt(1_800_000_000),
		LockedRewards: wei(1),
		Balance:       wei(110),
		NodeType:      big.NewInt(1),
		LockTime:      big.NewInt(86_400),
		TotalRewards:  wei(10),
		NodeStatus:    true,
	}}

	nodes, err := newTestReader(t, caller).OwnerNodes(context.Background(), testUser)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Equal(t, node, nodes[0].Address)
	require.True(t, nodes[0].Active)
	require.Equal(t, "110.000000000000000000", lending.ToDecimalString(nodes[0].Balance, 18))
	require.Equal(t, int64(1_800_000_000), nodes[0].EndTime)
}

func TestOwnerNodesRequiresRegistry(t *testing.T) {
	reader, err := NewReader(newFakeCaller(t), Config{VaultAddress: testVault, TokenAddress: testToken})
	require.NoError(t, err)
	_, err = reader.OwnerNodes(context.Background(), testUser)
	require.ErrorIs(t, err, ErrNodeRegistryDisabled)
}
