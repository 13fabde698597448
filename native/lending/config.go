package lending

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// LoadParams reads protocol parameters from a TOML file. Keys missing from
// the file keep their DefaultParams value. An empty path returns the
// defaults.
func LoadParams(path string) (Params, error) {
	params := DefaultParams()
	if strings.TrimSpace(path) == "" {
		return params, nil
	}
	if _, err := toml.DecodeFile(path, &params); err != nil {
		return Params{}, fmt.Errorf("decode lending params: %w", err)
	}
	params.EnsureDefaults()
	if err := params.Validate(); err != nil {
		return Params{}, err
	}
	return params, nil
}

// EnsureDefaults fills zero fields that would otherwise break display math.
func (p *Params) EnsureDefaults() {
	defaults := DefaultParams()
	if p.Decimals == 0 {
		p.Decimals = defaults.Decimals
	}
	if p.HealthWarning == 0 {
		p.HealthWarning = defaults.HealthWarning
	}
	if p.RateModel == (InterestRateModel{}) {
		p.RateModel = defaults.RateModel
	}
}
