package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lms-platform/shipping-core/internal/domain"
	"github.com/lms-platform/shipping-core/pkg/money"
)

var hundred = decimal.NewFromInt(100)

// ChargeInput is everything the calculator needs to price one consignment
type ChargeInput struct {
	Card             *RateCard
	Multiplier       decimal.Decimal
	Zone             string
	ChargeableWeight decimal.Decimal
	OrderType        domain.OrderType
	CollectableValue decimal.Decimal
	DeclaredValue    decimal.Decimal
	Direction        domain.Direction
}

// ComputeCharge prices a consignment from a rate card. Nothing is rounded here.
func ComputeCharge(in ChargeInput) (domain.ChargeBreakdown, error) {
	card := in.Card
	if !card.HasZone(in.Zone) {
		return domain.ChargeBreakdown{}, fmt.Errorf("%s/%s has no zone %q: %w", card.Carrier, card.Service, in.Zone, domain.ErrNoPricing)
	}

	direction := in.Direction
	if direction == "" {
		direction = domain.DirectionForward
	}
	slabs := card.Slabs(direction)
	if len(slabs) == 0 {
		return domain.ChargeBreakdown{}, fmt.Errorf("%s/%s has no %s pricing: %w", card.Carrier, card.Service, direction, domain.ErrNoPricing)
	}

	base, err := freight(slabs, in.Zone, in.ChargeableWeight)
	if err != nil {
		return domain.ChargeBreakdown{}, err
	}

	multiplier := in.Multiplier
	if multiplier.IsZero() {
		multiplier = decimal.NewFromInt(1)
	}
	freightCharge := base.Mul(multiplier)

	cod := decimal.Zero
	if in.OrderType == domain.OrderTypeCOD {
		cod = CODCharge(card.COD, in.CollectableValue)
	}

	fuel := freightCharge.Mul(card.FuelSurchargePercent).Div(hundred)
	weight, _ := in.ChargeableWeight.Float64()

	return domain.ChargeBreakdown{
		CarrierName:   card.Carrier,
		ServiceType:   card.Service,
		Zone:          in.Zone,
		ChargedWeight: weight,
		FreightCharge: money.New(freightCharge),
		CODCharge:     money.New(cod),
		FuelSurcharge: money.New(fuel),
		TotalCharge:   money.New(freightCharge.Add(cod).Add(fuel)),
		SourceKind:    domain.SourceInternalRateCard,
	}, nil
}

// freight sums the base row and the started increments of every slab the weight reaches
func freight(slabs []Slab, zone string, weight decimal.Decimal) (decimal.Decimal, error) {
	last := slabs[len(slabs)-1]
	if !last.IsOpen() && weight.GreaterThan(last.To) {
		return decimal.Zero, &domain.WeightOutOfRangeError{WeightKg: weight, MaxKg: last.To}
	}

	total := decimal.Zero
	for _, s := range slabs {
		if s.IsBase() {
			price, err := slabPrice(s, zone)
			if err != nil {
				return decimal.Zero, err
			}
			total = total.Add(price)
			continue
		}

		if !weight.GreaterThan(s.From) {
			break
		}
		upper := weight
		if !s.IsOpen() && upper.GreaterThan(s.To) {
			upper = s.To
		}
		count := upper.Sub(s.From).Div(s.Increment).Ceil()

		price, err := slabPrice(s, zone)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(count.Mul(price))
	}
	return total, nil
}

func slabPrice(s Slab, zone string) (decimal.Decimal, error) {
	price, ok := s.Prices[zone]
	if !ok {
		return decimal.Zero, fmt.Errorf("slab %q has no price for zone %q: %w", s.Label, zone, domain.ErrNoPricing)
	}
	return price, nil
}

// CODCharge applies the percentage to the collectable value, raised to the floor when one is set
func CODCharge(rule CODRule, collectable decimal.Decimal) decimal.Decimal {
	fee := collectable.Mul(rule.Percent).Div(hundred)
	if rule.Minimum.IsPositive() && fee.LessThan(rule.Minimum) {
		return rule.Minimum
	}
	return fee
}

// Query is a carrier-neutral pricing request
type Query struct {
	OriginPincode      string
	DestinationPincode string
	ActualWeightKg     decimal.Decimal
	VolumetricWeightKg decimal.Decimal
	OrderType          domain.OrderType
	CollectableValue   decimal.Decimal
	DeclaredValue      decimal.Decimal
	Direction          domain.Direction
}

// Price classifies and prices a query against one tier card
func Price(tc TierCard, q Query) (domain.ChargeBreakdown, error) {
	weight := ChargeableWeight(q.ActualWeightKg, q.VolumetricWeightKg, tc.Card.WeightStep)

	zone, err := Classify(q.OriginPincode, q.DestinationPincode, weight, tc.Card)
	if err != nil {
		return domain.ChargeBreakdown{}, err
	}

	return ComputeCharge(ChargeInput{
		Card:             tc.Card,
		Multiplier:       tc.Multiplier,
		Zone:             zone,
		ChargeableWeight: weight,
		OrderType:        q.OrderType,
		CollectableValue: q.CollectableValue,
		DeclaredValue:    q.DeclaredValue,
		Direction:        q.Direction,
	})
}
