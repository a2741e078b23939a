package carriers

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lms-platform/shipping-core/internal/domain"
	"github.com/lms-platform/shipping-core/pkg/money"
)

var ist = time.FixedZone("IST", 5*3600+1800)

// carrier timestamps carry no zone and are local to India
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02-01-2006 15:04:05",
}

func parseCarrierTime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, ist); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

var failureKeywords = []struct {
	reason   domain.FailureReason
	keywords []string
}{
	{domain.FailureCODNotReady, []string{"cod not ready", "cash not ready", "cod amount not ready"}},
	{domain.FailureRefused, []string{"refused", "rejected", "not accepted"}},
	{domain.FailureOutOfDeliveryArea, []string{"out of delivery area", "non serviceable", "non-serviceable"}},
	{domain.FailureAddressIssue, []string{"address", "incomplete", "wrong pincode"}},
	{domain.FailureRescheduled, []string{"reschedule", "future delivery", "delivery on"}},
	{domain.FailureCustomerUnavailable, []string{"not available", "unavailable", "door locked", "not reachable", "not responding"}},
}

// classifyFailure maps free-text carrier remarks onto the closed failure reason set
func classifyFailure(remarks string) domain.FailureReason {
	text := strings.ToLower(remarks)
	if text == "" {
		return ""
	}
	for _, fk := range failureKeywords {
		for _, kw := range fk.keywords {
			if strings.Contains(text, kw) {
				return fk.reason
			}
		}
	}
	return domain.FailureOther
}

// breakdown builds a live-carrier charge. Fuel is whatever the total holds
// beyond freight and COD.
func breakdown(carrier, service, zone string, weightKg float64, total, freight, cod float64) *domain.ChargeBreakdown {
	t := decimal.NewFromFloat(total)
	f := decimal.NewFromFloat(freight)
	c := decimal.NewFromFloat(cod)
	if f.IsZero() {
		f = t.Sub(c)
	}
	fuel := t.Sub(f).Sub(c)
	if fuel.IsNegative() {
		fuel = decimal.Zero
	}

	return &domain.ChargeBreakdown{
		CarrierName:   carrier,
		ServiceType:   service,
		Zone:          zone,
		ChargedWeight: weightKg,
		FreightCharge: money.New(f),
		CODCharge:     money.New(c),
		FuelSurcharge: money.New(fuel),
		TotalCharge:   money.New(t),
		SourceKind:    domain.SourceLiveCarrierAPI,
	}
}
