package pricing

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/lms-platform/shipping-core/internal/domain"
	"github.com/lms-platform/shipping-core/pkg/validation"
)

// VolumetricDivisor converts cubic centimetres into volumetric kilograms
const VolumetricDivisor = 5000

// defaultMetroPrefixes are the three-digit pincode prefixes of the metro cities
var defaultMetroPrefixes = []string{"110", "400", "560", "600", "700", "500", "380", "411"}

// VolumetricWeight returns l*b*h/5000 in kilograms
func VolumetricWeight(lengthCm, breadthCm, heightCm decimal.Decimal) decimal.Decimal {
	return lengthCm.Mul(breadthCm).Mul(heightCm).Div(decimal.NewFromInt(VolumetricDivisor))
}

// ChargeableWeight is the larger of actual and volumetric weight rounded up
// to the card's bracket step
func ChargeableWeight(actualKg, volumetricKg, step decimal.Decimal) decimal.Decimal {
	w := decimal.Max(actualKg, volumetricKg)
	if !step.IsPositive() || !w.IsPositive() {
		return w
	}
	return w.Div(step).Ceil().Mul(step)
}

// Classify resolves the zone of a lane against the card's own rules. The
// first matching rule wins.
func Classify(origin, destination string, chargeableWeight decimal.Decimal, card *RateCard) (string, error) {
	if !validation.IsPincode(origin) {
		return "", &domain.UnclassifiableZoneError{Origin: origin, Destination: destination, Reason: "malformed origin pincode"}
	}
	if !validation.IsPincode(destination) {
		return "", &domain.UnclassifiableZoneError{Origin: origin, Destination: destination, Reason: "malformed destination pincode"}
	}
	if !chargeableWeight.IsPositive() {
		return "", &domain.UnclassifiableZoneError{Origin: origin, Destination: destination, Reason: "weight must be positive"}
	}

	for _, rule := range card.Rules {
		if rule.matches(origin, destination) {
			return rule.Zone, nil
		}
	}

	return "", &domain.UnclassifiableZoneError{
		Origin:      origin,
		Destination: destination,
		Reason:      "no zone rule of " + card.Carrier + "/" + card.Service + " matches",
	}
}

func (r ZoneRule) matches(origin, destination string) bool {
	if r.MaxRegionDistance > 0 && regionDistance(origin, destination) > r.MaxRegionDistance {
		return false
	}

	switch r.Kind {
	case RuleSameCity:
		return origin[:3] == destination[:3]
	case RuleSameCircle:
		return origin[:2] == destination[:2]
	case RuleSameRegion:
		return origin[0] == destination[0]
	case RuleMetroToMetro:
		metros := r.Prefixes
		if len(metros) == 0 {
			metros = defaultMetroPrefixes
		}
		return hasAnyPrefix(origin, metros) && hasAnyPrefix(destination, metros)
	case RuleSpecialDestination:
		return hasAnyPrefix(destination, r.Prefixes)
	case RuleDefault:
		return true
	}
	return false
}

// regionDistance is the distance between the postal regions (first digit) of two pincodes
func regionDistance(a, b string) int {
	d := int(a[0]) - int(b[0])
	if d < 0 {
		return -d
	}
	return d
}

func hasAnyPrefix(pincode string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(pincode, p) {
			return true
		}
	}
	return false
}
