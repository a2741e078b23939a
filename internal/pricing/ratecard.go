// Package pricing holds the published rate tables and the internal charge
// calculator. A Table is immutable once loaded; publishing new rates means
// loading a new Table and swapping it into the Catalog.
package pricing

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/lms-platform/shipping-core/internal/domain"
)

// Zone is one band of a carrier's zone partition
type Zone struct {
	Code  string
	Label string
}

// Slab is one weight-bracket row. The base row has a zero Increment and is
// charged once; increment rows charge per started Increment between From and
// To. A zero To means the row is open-ended.
type Slab struct {
	Label     string
	From      decimal.Decimal
	To        decimal.Decimal
	Increment decimal.Decimal
	Prices    map[string]decimal.Decimal
}

// IsBase reports whether the slab is the flat base row
func (s Slab) IsBase() bool {
	return s.Increment.IsZero()
}

// IsOpen reports whether the slab has no upper bound
func (s Slab) IsOpen() bool {
	return s.To.IsZero()
}

// CODRule is a percentage of the collectable value with an optional flat floor
type CODRule struct {
	Percent decimal.Decimal
	Minimum decimal.Decimal
}

// RuleKind names a zone classification rule
type RuleKind string

const (
	RuleSameCity           RuleKind = "sameCity"
	RuleSameCircle         RuleKind = "sameCircle"
	RuleSameRegion         RuleKind = "sameRegion"
	RuleMetroToMetro       RuleKind = "metroToMetro"
	RuleSpecialDestination RuleKind = "specialDestination"
	RuleDefault            RuleKind = "default"
)

// ZoneRule maps a lane onto a zone. MaxRegionDistance, when set, additionally
// requires the postal regions of both ends to be at most that far apart.
type ZoneRule struct {
	Kind              RuleKind
	Zone              string
	Prefixes          []string
	MaxRegionDistance int
}

// RateCard is the base pricing of one carrier service. It is shared by
// every tier that offers the service and must not be modified after loading.
type RateCard struct {
	Carrier              string
	Service              string
	Zones                []Zone
	Rules                []ZoneRule
	Forward              []Slab
	RTO                  []Slab
	DTO                  []Slab
	COD                  CODRule
	FuelSurchargePercent decimal.Decimal
	WeightStep           decimal.Decimal
}

// HasZone reports whether code is part of the card's zone partition
func (c *RateCard) HasZone(code string) bool {
	for _, z := range c.Zones {
		if z.Code == code {
			return true
		}
	}
	return false
}

// Slabs returns the rows priced for a direction
func (c *RateCard) Slabs(dir domain.Direction) []Slab {
	switch dir {
	case domain.DirectionRTO:
		return c.RTO
	case domain.DirectionReverse:
		return c.DTO
	default:
		return c.Forward
	}
}

// MaxWeight returns the upper bound of the last slab, or zero when open-ended
func (c *RateCard) MaxWeight(dir domain.Direction) decimal.Decimal {
	slabs := c.Slabs(dir)
	if len(slabs) == 0 {
		return decimal.Zero
	}
	return slabs[len(slabs)-1].To
}

func (c *RateCard) key() cardKey {
	return cardKey{carrier: c.Carrier, service: c.Service}
}

func (c *RateCard) validate() error {
	if c.Carrier == "" || c.Service == "" {
		return fmt.Errorf("rate card needs carrier and service")
	}
	if len(c.Zones) == 0 {
		return fmt.Errorf("%s/%s: no zones", c.Carrier, c.Service)
	}
	if !c.WeightStep.IsPositive() {
		return fmt.Errorf("%s/%s: weightStepKg must be positive", c.Carrier, c.Service)
	}
	if len(c.Forward) == 0 {
		return fmt.Errorf("%s/%s: no forward slabs", c.Carrier, c.Service)
	}

	for _, r := range c.Rules {
		if !c.HasZone(r.Zone) {
			return fmt.Errorf("%s/%s: rule %s references unknown zone %q", c.Carrier, c.Service, r.Kind, r.Zone)
		}
	}

	if err := c.validateSlabs("forward", c.Forward); err != nil {
		return err
	}
	if err := c.validateSlabs("rto", c.RTO); err != nil {
		return err
	}
	return c.validateSlabs("dto", c.DTO)
}

func (c *RateCard) validateSlabs(dir string, slabs []Slab) error {
	prev := decimal.Zero
	for i, s := range slabs {
		name := fmt.Sprintf("%s/%s %s slab %q", c.Carrier, c.Service, dir, s.Label)

		if i == 0 && (!s.IsBase() || !s.From.IsZero()) {
			return fmt.Errorf("%s: first slab must be a base row starting at 0", name)
		}
		if i > 0 && s.IsBase() {
			return fmt.Errorf("%s: only the first slab may be a base row", name)
		}
		if !s.From.Equal(prev) {
			return fmt.Errorf("%s: starts at %s, expected %s", name, s.From, prev)
		}
		if s.IsOpen() && i != len(slabs)-1 {
			return fmt.Errorf("%s: only the last slab may be open-ended", name)
		}
		if !s.IsOpen() && !s.To.GreaterThan(s.From) {
			return fmt.Errorf("%s: upper bound must exceed lower bound", name)
		}

		for zone, price := range s.Prices {
			if !c.HasZone(zone) {
				return fmt.Errorf("%s: references unknown zone %q", name, zone)
			}
			if price.IsNegative() {
				return fmt.Errorf("%s: negative price for zone %q", name, zone)
			}
		}
		prev = s.To
	}
	return nil
}

// Tier is a pricing cohort. Its multiplier is a markup over the base cards.
type Tier struct {
	Name       string
	Multiplier decimal.Decimal
	Partners   []PartnerRef
}

// PartnerRef selects a base card for a tier
type PartnerRef struct {
	Carrier string
	Service string
}

// TierCard is a base card as offered to one tier
type TierCard struct {
	Tier       string
	Multiplier decimal.Decimal
	Card       *RateCard
}

type cardKey struct {
	carrier string
	service string
}

// Table is one published version of the rate tables
type Table struct {
	version string
	cards   map[cardKey]*RateCard
	tiers   map[string]Tier
}

// Version identifies the published table
func (t *Table) Version() string {
	return t.version
}

// Tier returns a tier by name
func (t *Table) Tier(name string) (Tier, error) {
	tier, ok := t.tiers[name]
	if !ok {
		return Tier{}, &domain.UnknownTierError{Tier: name}
	}
	return tier, nil
}

// Tiers lists tier names in alphabetical order
func (t *Table) Tiers() []string {
	names := make([]string, 0, len(t.tiers))
	for name := range t.tiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CardsForTier returns every card offered to a tier with the tier multiplier attached
func (t *Table) CardsForTier(name string) ([]TierCard, error) {
	tier, err := t.Tier(name)
	if err != nil {
		return nil, err
	}

	out := make([]TierCard, 0, len(tier.Partners))
	for _, p := range tier.Partners {
		card := t.cards[cardKey{carrier: p.Carrier, service: p.Service}]
		out = append(out, TierCard{Tier: tier.Name, Multiplier: tier.Multiplier, Card: card})
	}
	return out, nil
}

// Card returns the card a tier uses for one carrier service. The second
// return is false when the tier does not offer it.
func (t *Table) Card(tierName, carrier, service string) (TierCard, bool, error) {
	cards, err := t.CardsForTier(tierName)
	if err != nil {
		return TierCard{}, false, err
	}
	for _, tc := range cards {
		if tc.Card.Carrier == carrier && tc.Card.Service == service {
			return tc, true, nil
		}
	}
	return TierCard{}, false, nil
}
