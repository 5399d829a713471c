package features

import (
	"github.com/opensource-finance/quantra/internal/domain"
)

// indicators are the slots that only ever hold 0 or 1.
var indicators = map[string]bool{
	domain.FeatAmountOver50k:    true,
	domain.FeatAmountOver10k:    true,
	domain.FeatAmountOver5k:     true,
	domain.FeatLocationForeign:  true,
	domain.FeatFrequencyOver10:  true,
	domain.FeatFrequencyOver5:   true,
	domain.FeatTypeWithdrawal:   true,
	domain.FeatTypeCredit:       true,
	domain.FeatAmountOver3xMean: true,
}

// IsIndicator reports whether the named slot is a boolean flag.
func IsIndicator(name string) bool {
	return indicators[name]
}

// Index returns the position of the named slot, or -1.
func Index(name string) int {
	for i, n := range domain.FeatureNames {
		if n == name {
			return i
		}
	}
	return -1
}

// Facts exposes a vector as named values: indicator slots become bools and
// numeric slots stay float64. Missing trailing slots read as zero.
func Facts(fv domain.FeatureVector) map[string]any {
	facts := make(map[string]any, len(domain.FeatureNames))
	for i, name := range domain.FeatureNames {
		var v float64
		if i < len(fv) {
			v = fv[i]
		}
		if indicators[name] {
			facts[name] = v > 0
		} else {
			facts[name] = v
		}
	}
	return facts
}
