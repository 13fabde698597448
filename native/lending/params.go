package lending

import (
	"errors"
	"fmt"
)

// RevenueShare splits borrower interest between the adapter deployer, the
// protocol reserve and lenders. Values are percentages summing to 100.
type RevenueShare struct {
	DeployerPercent uint64 `toml:"DeployerPercent" json:"deployerShare"`
	ProtocolPercent uint64 `toml:"ProtocolPercent" json:"protocolShare"`
	LenderPercent   uint64 `toml:"LenderPercent" json:"lenderShare"`
}

// LenderShare returns the lender percentage in basis points.
func (r RevenueShare) LenderShare() BasisPoints {
	return BasisPoints(r.LenderPercent * 100)
}

// Params groups the protocol parameters the dashboard falls back to when the
// vault cannot be read, along with display thresholds.
type Params struct {
	// MaxLTVBps is the loan-to-value ceiling for new borrows.
	MaxLTVBps BasisPoints `toml:"MaxLTVBps" json:"maxLTV"`
	// LiquidationThresholdBps is the LTV at which positions become
	// liquidatable.
	LiquidationThresholdBps BasisPoints `toml:"LiquidationThresholdBps" json:"liquidationThreshold"`
	// HealthWarning is the health factor below which positions are flagged.
	HealthWarning float64 `toml:"HealthWarning" json:"healthWarning"`
	// FallbackSupplyAPYBps and FallbackBorrowAPYBps are shown when the
	// vault's rate getters fail.
	FallbackSupplyAPYBps BasisPoints `toml:"FallbackSupplyAPYBps" json:"fallbackSupplyAPY"`
	FallbackBorrowAPYBps BasisPoints `toml:"FallbackBorrowAPYBps" json:"fallbackBorrowAPY"`
	// Decimals is the fixed-point scale of the vault asset.
	Decimals uint8 `toml:"Decimals" json:"decimals"`

	RateModel InterestRateModel `toml:"rate_model" json:"interestRateModel"`
	Revenue   RevenueShare      `toml:"revenue" json:"revenueSharing"`
}

var (
	errThresholdBelowLTV = errors.New("lending params: liquidation threshold must exceed max LTV")
	errRevenueShares     = errors.New("lending params: revenue shares must sum to 100")
)

// DefaultParams returns the parameters of the current testnet deployment.
func DefaultParams() Params {
	return Params{
		MaxLTVBps:               7_500,
		LiquidationThresholdBps: 8_000,
		HealthWarning:           DefaultHealthWarning,
		FallbackSupplyAPYBps:    300,
		FallbackBorrowAPYBps:    500,
		Decimals:                DefaultDecimals,
		RateModel:               DefaultInterestRateModel,
		Revenue: RevenueShare{
			DeployerPercent: 15,
			ProtocolPercent: 5,
			LenderPercent:   80,
		},
	}
}

// LiquidationThresholdPercent returns the liquidation threshold as a
// percentage suitable for ComputeHealthFactor.
func (p Params) LiquidationThresholdPercent() float64 {
	return BasisPointsToPercent(p.LiquidationThresholdBps)
}

// Validate checks the parameters for internal consistency.
func (p Params) Validate() error {
	if p.MaxLTVBps == 0 || p.LiquidationThresholdBps <= p.MaxLTVBps {
		return errThresholdBelowLTV
	}
	if p.LiquidationThresholdBps > 10_000 {
		return fmt.Errorf("lending params: liquidation threshold %d exceeds 100%%", p.LiquidationThresholdBps)
	}
	if p.Revenue.DeployerPercent+p.Revenue.ProtocolPercent+p.Revenue.LenderPercent != 100 {
		return errRevenueShares
	}
	if p.HealthWarning < 1 {
		return fmt.Errorf("lending params: health warning %.2f must be at least 1", p.HealthWarning)
	}
	return nil
}
