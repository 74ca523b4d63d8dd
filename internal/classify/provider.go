// Package classify maps free-text names and state codes onto the model's
// categorical fields: dialysis provider, pass network, and region.
package classify

import (
	"strings"

	"github.com/skiwithcare/datagen/internal/model"
)

type providerRule struct {
	substring string
	provider  model.Provider
}

// providerRules are tested in order against the upper-cased chain name.
var providerRules = []providerRule{
	{"DAVITA", model.ProviderDaVita},
	{"FRESENIUS", model.ProviderFresenius},
	{"FMC", model.ProviderFresenius}, // Fresenius Medical Care
	{"DIALYSIS CLINIC", model.ProviderIndependent},
}

// Provider returns the canonical provider for a dialysis chain organization
// name. The first matching rule wins; no match or empty input is ProviderOther.
func Provider(chain string) model.Provider {
	upper := strings.ToUpper(strings.TrimSpace(chain))
	if upper == "" {
		return model.ProviderOther
	}
	for _, rule := range providerRules {
		if strings.Contains(upper, rule.substring) {
			return rule.provider
		}
	}
	return model.ProviderOther
}
