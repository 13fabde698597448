package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"infrafi/native/lending"
)

const defaultCallTimeout = 5 * time.Second

var (
	// ErrInvalidAddress is returned for strings that are not 20-byte hex
	// addresses.
	ErrInvalidAddress = errors.New("chain: invalid address")
	// ErrNodeRegistryDisabled is returned when no node registry contract is
	// configured.
	ErrNodeRegistryDisabled = errors.New("chain: node registry not configured")

	errEmptyReturn = errors.New("empty return data")
)

var oneIndex = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Caller executes read-only contract calls. *ethclient.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Dial connects to an EVM JSON-RPC endpoint.
func Dial(ctx context.Context, endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("evm endpoint required")
	}
	return ethclient.DialContext(ctx, trimmed)
}

// ParseAddress validates and decodes a hex address.
func ParseAddress(s string) (common.Address, error) {
	trimmed := strings.TrimSpace(s)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(trimmed), nil
}

// Config identifies the deployed contracts.
type Config struct {
	VaultAddress string
	TokenAddress string
	// NodeRegistryAddress is optional; without it OwnerNodes is disabled.
	NodeRegistryAddress string
	// Params supplies the values reported when a vault getter fails.
	Params      lending.Params
	CallTimeout time.Duration
	Logger      *slog.Logger
}

// Reader reads protocol and user state from the vault contracts. Every getter
// is called independently so a single failing method degrades only the field
// it feeds.
type Reader struct {
	caller   Caller
	vault    common.Address
	token    common.Address
	registry *common.Address
	vaultABI abi.ABI
	tokenABI abi.ABI
	nodeABI  abi.ABI
	params   lending.Params
	timeout  time.Duration
	logger   *slog.Logger
}

// NewReader validates the configuration and parses the contract ABIs.
func NewReader(caller Caller, cfg Config) (*Reader, error) {
	if caller == nil {
		return nil, fmt.Errorf("contract caller is required")
	}
	vault, err := ParseAddress(cfg.VaultAddress)
	if err != nil {
		return nil, fmt.Errorf("vault address: %w", err)
	}
	token, err := ParseAddress(cfg.TokenAddress)
	if err != nil {
		return nil, fmt.Errorf("token address: %w", err)
	}
	var registry *common.Address
	if strings.TrimSpace(cfg.NodeRegistryAddress) != "" {
		addr, err := ParseAddress(cfg.NodeRegistryAddress)
		if err != nil {
			return nil, fmt.Errorf("node registry address: %w", err)
		}
		registry = &addr
	}
	vaultABI, err := abi.JSON(strings.NewReader(nodeVaultABI))
	if err != nil {
		return nil, fmt.Errorf("parse vault abi: %w", err)
	}
	tokenParsed, err := abi.JSON(strings.NewReader(tokenABI))
	if err != nil {
		return nil, fmt.Errorf("parse token abi: %w", err)
	}
	nodeParsed, err := abi.JSON(strings.NewReader(oortNodeABI))
	if err != nil {
		return nil, fmt.Errorf("parse node abi: %w", err)
	}
	params := cfg.Params
	if params == (lending.Params{}) {
		params = lending.DefaultParams()
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		caller:   caller,
		vault:    vault,
		token:    token,
		registry: registry,
		vaultABI: vaultABI,
		tokenABI: tokenParsed,
		nodeABI:  nodeParsed,
		params:   params,
		timeout:  timeout,
		logger:   logger.With(slog.String("component", "chain")),
	}, nil
}

// VaultAddress returns the configured vault.
func (r *Reader) VaultAddress() common.Address { return r.vault }

func (r *Reader) call(ctx context.Context, contract common.Address, parsed abi.ABI, method string, args ...any) ([]any, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	out, err := r.caller.CallContract(callCtx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("call %s: %w", method, errEmptyReturn)
	}
	values, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func (r *Reader) callUint(ctx context.Context, contract common.Address, parsed abi.ABI, method string, args ...any) (*big.Int, error) {
	values, err := r.call(ctx, contract, parsed, method, args...)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("call %s: %w", method, errEmptyReturn)
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("call %s: unexpected %T", method, values[0])
	}
	return v, nil
}

// ProtocolStats is a live snapshot of the vault.
type ProtocolStats struct {
	TotalSupplied        lending.TokenAmount
	TotalBorrowed        lending.TokenAmount
	UtilizationRate      lending.BasisPoints
	SupplyAPY            lending.BasisPoints
	BorrowAPY            lending.BasisPoints
	MaxLTV               lending.BasisPoints
	LiquidationThreshold lending.BasisPoints
	RateModel            lending.InterestRateModel
	SupplyIndex          lending.TokenAmount
	BorrowIndex          lending.TokenAmount
	// Degraded lists the getters that failed and were replaced by defaults.
	Degraded  []string
	FetchedAt time.Time
}

// ProtocolStats reads every vault statistic. It never fails: getters that
// error fall back to the configured parameters and are listed in Degraded.
func (r *Reader) ProtocolStats(ctx context.Context) ProtocolStats {
	stats := ProtocolStats{
		TotalSupplied:        lending.Zero(),
		TotalBorrowed:        lending.Zero(),
		SupplyAPY:            r.params.FallbackSupplyAPYBps,
		BorrowAPY:            r.params.FallbackBorrowAPYBps,
		MaxLTV:               r.params.MaxLTVBps,
		LiquidationThreshold: r.params.LiquidationThresholdBps,
		RateModel:            r.params.RateModel,
		SupplyIndex:          amount(oneIndex),
		BorrowIndex:          amount(oneIndex),
		FetchedAt:            time.Now().UTC(),
	}

	amounts := []struct {
		method string
		dst    *lending.TokenAmount
	}{
		{"getTotalSupplied", &stats.TotalSupplied},
		{"getTotalDebt", &stats.TotalBorrowed},
		{"supplyIndex", &stats.SupplyIndex},
		{"borrowIndex", &stats.BorrowIndex},
	}
	for _, item := range amounts {
		v, err := r.callUint(ctx, r.vault, r.vaultABI, item.method)
		if err != nil {
			stats.Degraded = append(stats.Degraded, r.degrade(item.method, err))
			continue
		}
		*item.dst = amount(v)
	}

	rates := []struct {
		method string
		dst    *lending.BasisPoints
	}{
		{"getUtilizationRate", &stats.UtilizationRate},
		{"getCurrentBorrowAPY", &stats.BorrowAPY},
		{"getCurrentSupplyAPY", &stats.SupplyAPY},
		{"maxLTV", &stats.MaxLTV},
		{"LIQUIDATION_THRESHOLD", &stats.LiquidationThreshold},
	}
	for _, item := range rates {
		v, err := r.callUint(ctx, r.vault, r.vaultABI, item.method)
		if err == nil && !v.IsUint64() {
			err = fmt.Errorf("value %s out of range", v)
		}
		if err != nil {
			stats.Degraded = append(stats.Degraded, r.degrade(item.method, err))
			continue
		}
		*item.dst = lending.BasisPoints(v.Uint64())
	}

	if model, err := r.rateModel(ctx); err != nil {
		stats.Degraded = append(stats.Degraded, r.degrade("getJumpRateModel", err))
	} else {
		stats.RateModel = model
	}
	return stats
}

func (r *Reader) rateModel(ctx context.Context) (lending.InterestRateModel, error) {
	values, err := r.call(ctx, r.vault, r.vaultABI, "getJumpRateModel")
	if err != nil {
		return lending.InterestRateModel{}, err
	}
	if len(values) != 4 {
		return lending.InterestRateModel{}, fmt.Errorf("getJumpRateModel: expected 4 values, got %d", len(values))
	}
	var bps [4]lending.BasisPoints
	for i, value := range values {
		v, ok := value.(*big.Int)
		if !ok || !v.IsUint64() {
			return lending.InterestRateModel{}, fmt.Errorf("getJumpRateModel: invalid value %v", value)
		}
		bps[i] = lending.BasisPoints(v.Uint64())
	}
	return lending.InterestRateModel{BaseRate: bps[0], Multiplier: bps[1], Jump: bps[2], Kink: bps[3]}, nil
}

func (r *Reader) degrade(method string, err error) string {
	r.logger.Warn("vault getter failed, using fallback",
		slog.String("method", method),
		slog.String("error", err.Error()))
	return method
}

// NodeRef identifies a node deposited as collateral.
type NodeRef struct {
	NodeID   string `json:"nodeId"`
	NodeType string `json:"nodeType"`
}

// UserPosition is the live on-chain state of one account.
type UserPosition struct {
	Address        common.Address
	WalletBalance  lending.TokenAmount
	Allowance      lending.TokenAmount
	Supplied       lending.TokenAmount
	SupplyInterest lending.TokenAmount
	Principal      lending.TokenAmount
	BorrowInterest lending.TokenAmount
	MaxBorrow      lending.TokenAmount
	DepositedNodes []NodeRef
	Degraded       []string
}

// Debt returns principal plus accrued borrow interest.
func (p UserPosition) Debt() lending.TokenAmount {
	return lending.SaturatingAdd(p.Principal, p.BorrowInterest)
}

type lenderPositionTuple struct {
	TotalSupplied         *big.Int
	AccruedInterest       *big.Int
	LastSupplyTime        *big.Int
	SupplyIndexCheckpoint *big.Int
}

type borrowerPositionTuple struct {
	TotalBorrowed         *big.Int
	AccruedInterest       *big.Int
	LastBorrowTime        *big.Int
	BorrowIndexCheckpoint *big.Int
	DepositedNodes        []struct {
		NodeId   *big.Int
		NodeType *big.Int
	}
}

// UserPosition reads the wallet, lender and borrower state of address.
// Individual getter failures zero the affected fields and are listed in
// Degraded; only an invalid address is an error.
func (r *Reader) UserPosition(ctx context.Context, address string) (UserPosition, error) {
	user, err := ParseAddress(address)
	if err != nil {
		return UserPosition{}, err
	}
	pos := UserPosition{
		Address:        user,
		WalletBalance:  lending.Zero(),
		Allowance:      lending.Zero(),
		Supplied:       lending.Zero(),
		SupplyInterest: lending.Zero(),
		Principal:      lending.Zero(),
		BorrowInterest: lending.Zero(),
		MaxBorrow:      lending.Zero(),
	}

	if v, err := r.callUint(ctx, r.token, r.tokenABI, "balanceOf", user); err != nil {
		pos.Degraded = append(pos.Degraded, r.degrade("balanceOf", err))
	} else {
		pos.WalletBalance = amount(v)
	}
	if v, err := r.callUint(ctx, r.token, r.tokenABI, "allowance", user, r.vault); err != nil {
		pos.Degraded = append(pos.Degraded, r.degrade("allowance", err))
	} else {
		pos.Allowance = amount(v)
	}

	if values, err := r.call(ctx, r.vault, r.vaultABI, "getLenderPosition", user); err != nil {
		pos.Degraded = append(pos.Degraded, r.degrade("getLenderPosition", err))
	} else if lender, err := convertTuple[lenderPositionTuple](values); err != nil {
		pos.Degraded = append(pos.Degraded, r.degrade("getLenderPosition", err))
	} else {
		pos.Supplied = amount(lender.TotalSupplied)
		pos.SupplyInterest = amount(lender.AccruedInterest)
	}

	if values, err := r.call(ctx, r.vault, r.vaultABI, "getBorrowerPosition", user); err != nil {
		pos.Degraded = append(pos.Degraded, r.degrade("getBorrowerPosition", err))
	} else if borrower, err := convertTuple[borrowerPositionTuple](values); err != nil {
		pos.Degraded = append(pos.Degraded, r.degrade("getBorrowerPosition", err))
	} else {
		pos.Principal = amount(borrower.TotalBorrowed)
		pos.BorrowInterest = amount(borrower.AccruedInterest)
		for _, node := range borrower.DepositedNodes {
			pos.DepositedNodes = append(pos.DepositedNodes, NodeRef{
				NodeID:   bigString(node.NodeId),
				NodeType: bigString(node.NodeType),
			})
		}
	}

	if v, err := r.callUint(ctx, r.vault, r.vaultABI, "getMaxBorrowAmount", user); err != nil {
		pos.Degraded = append(pos.Degraded, r.degrade("getMaxBorrowAmount", err))
	} else {
		pos.MaxBorrow = amount(v)
	}
	return pos, nil
}

// OortNode is a node registered to an owner on the OORT network.
type OortNode struct {
	Address       common.Address
	Owner         common.Address
	Pledge        lending.TokenAmount
	MaxPledge     lending.TokenAmount
	LockedRewards lending.TokenAmount
	// Balance is pledge plus rewards, the value credited as collateral.
	Balance      lending.TokenAmount
	TotalRewards lending.TokenAmount
	NodeType     uint64
	EndTime      int64
	LockTime     int64
	Active       bool
}

type nodeDataTuple struct {
	OwnerAddress  common.Address
	NodeAddress   common.Address
	Pledge        *big.Int
	MaxPledge     *big.Int
	EndTime       *big.Int
	LockedRewards *big.Int
	Balance       *big.Int
	NodeType      *big.Int
	LockTime      *big.Int
	TotalRewards  *big.Int
	NodeStatus    bool
}

// OwnerNodes lists the nodes registered to owner. Nodes whose details cannot
// be read are skipped.
func (r *Reader) OwnerNodes(ctx context.Context, owner string) ([]OortNode, error) {
	if r.registry == nil {
		return nil, ErrNodeRegistryDisabled
	}
	addr, err := ParseAddress(owner)
	if err != nil {
		return nil, err
	}
	values, err := r.call(ctx, *r.registry, r.nodeABI, "getOwnerNodeList", addr)
	if err != nil {
		return nil, err
	}
	list, ok := values[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("getOwnerNodeList: unexpected %T", values[0])
	}
	nodes := make([]OortNode, 0, len(list))
	for _, nodeAddr := range list {
		values, err := r.call(ctx, *r.registry, r.nodeABI, "nodeDataInfo", nodeAddr)
		if err != nil {
			r.degrade("nodeDataInfo", err)
			continue
		}
		info, err := convertTuple[nodeDataTuple](values)
		if err != nil {
			r.degrade("nodeDataInfo", err)
			continue
		}
		nodes = append(nodes, OortNode{
			Address:       nodeAddr,
			Owner:         info.OwnerAddress,
			Pledge:        amount(info.Pledge),
			MaxPledge:     amount(info.MaxPledge),
			LockedRewards: amount(info.LockedRewards),
			Balance:       amount(info.Balance),
			TotalRewards:  amount(info.TotalRewards),
			NodeType:      bigUint64(info.NodeType),
			EndTime:       int64(bigUint64(info.EndTime)),
			LockTime:      int64(bigUint64(info.LockTime)),
			Active:        info.NodeStatus,
		})
	}
	return nodes, nil
}

// convertTuple copies a single unpacked tuple into T.
func convertTuple[T any](values []any) (out T, err error) {
	if len(values) != 1 {
		return out, fmt.Errorf("expected a single tuple, got %d values", len(values))
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("convert tuple: %v", rec)
		}
	}()
	converted := abi.ConvertType(values[0], new(T)).(*T)
	return *converted, nil
}

func amount(v *big.Int) lending.TokenAmount {
	out, _ := lending.FromBig(v)
	return out
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func bigUint64(v *big.Int) uint64 {
	if v == nil || !v.IsUint64() {
		return 0
	}
	return v.Uint64()
}
