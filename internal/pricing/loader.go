package pricing

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed ratecards.yaml
var defaultTableYAML []byte

type tableFile struct {
	Version string     `yaml:"version"`
	Cards   []cardFile `yaml:"cards"`
	Tiers   []tierFile `yaml:"tiers"`
}

type cardFile struct {
	Carrier              string         `yaml:"carrier"`
	Service              string         `yaml:"service"`
	WeightStepKg         float64        `yaml:"weightStepKg"`
	FuelSurchargePercent float64        `yaml:"fuelSurchargePercent"`
	COD                  codFile        `yaml:"cod"`
	Zones                []zoneFile     `yaml:"zones"`
	ZoneRules            []zoneRuleFile `yaml:"zoneRules"`
	Forward              []slabFile     `yaml:"forward"`
	RTO                  []slabFile     `yaml:"rto"`
	DTO                  []slabFile     `yaml:"dto"`
}

type codFile struct {
	Percent float64 `yaml:"percent"`
	Minimum float64 `yaml:"minimum"`
}

type zoneFile struct {
	Code  string `yaml:"code"`
	Label string `yaml:"label"`
}

type zoneRuleFile struct {
	Match             string   `yaml:"match"`
	Zone              string   `yaml:"zone"`
	Prefixes          []string `yaml:"prefixes"`
	MaxRegionDistance int      `yaml:"maxRegionDistance"`
}

type slabFile struct {
	Label         string             `yaml:"label"`
	FromKg        float64            `yaml:"fromKg"`
	ToKg          float64            `yaml:"toKg"`
	IncrementKg   float64            `yaml:"incrementKg"`
	Prices        map[string]float64 `yaml:"prices"`
	SameAsForward bool               `yaml:"sameAsForward"`
}

type tierFile struct {
	Name       string  `yaml:"name"`
	Multiplier float64 `yaml:"multiplier"`
	Partners   []struct {
		Carrier string `yaml:"carrier"`
		Service string `yaml:"service"`
	} `yaml:"partners"`
}

// DefaultTable returns the rate tables compiled into the binary
func DefaultTable() (*Table, error) {
	return LoadTable(bytes.NewReader(defaultTableYAML))
}

// LoadFile reads a table from a YAML file
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rate table: %w", err)
	}
	defer f.Close()

	return LoadTable(f)
}

// LoadTable parses and validates a YAML rate table
func LoadTable(r io.Reader) (*Table, error) {
	var file tableFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode rate table: %w", err)
	}

	if file.Version == "" {
		return nil, fmt.Errorf("rate table has no version")
	}

	t := &Table{
		version: file.Version,
		cards:   make(map[cardKey]*RateCard, len(file.Cards)),
		tiers:   make(map[string]Tier, len(file.Tiers)),
	}

	for _, cf := range file.Cards {
		card, err := cf.toRateCard()
		if err != nil {
			return nil, err
		}
		if err := card.validate(); err != nil {
			return nil, fmt.Errorf("invalid rate card: %w", err)
		}
		if _, dup := t.cards[card.key()]; dup {
			return nil, fmt.Errorf("duplicate rate card %s/%s", card.Carrier, card.Service)
		}
		t.cards[card.key()] = card
	}

	for _, tf := range file.Tiers {
		tier := Tier{Name: tf.Name, Multiplier: decimal.NewFromFloat(tf.Multiplier)}
		if tier.Name == "" || !tier.Multiplier.IsPositive() {
			return nil, fmt.Errorf("tier %q needs a name and a positive multiplier", tf.Name)
		}
		for _, p := range tf.Partners {
			if _, ok := t.cards[cardKey{carrier: p.Carrier, service: p.Service}]; !ok {
				return nil, fmt.Errorf("tier %s references unknown card %s/%s", tf.Name, p.Carrier, p.Service)
			}
			tier.Partners = append(tier.Partners, PartnerRef{Carrier: p.Carrier, Service: p.Service})
		}
		if _, dup := t.tiers[tier.Name]; dup {
			return nil, fmt.Errorf("duplicate tier %s", tier.Name)
		}
		t.tiers[tier.Name] = tier
	}

	return t, nil
}

func (cf cardFile) toRateCard() (*RateCard, error) {
	card := &RateCard{
		Carrier:              cf.Carrier,
		Service:              cf.Service,
		WeightStep:           decimal.NewFromFloat(cf.WeightStepKg),
		FuelSurchargePercent: decimal.NewFromFloat(cf.FuelSurchargePercent),
		COD: CODRule{
			Percent: decimal.NewFromFloat(cf.COD.Percent),
			Minimum: decimal.NewFromFloat(cf.COD.Minimum),
		},
	}

	for _, z := range cf.Zones {
		card.Zones = append(card.Zones, Zone{Code: z.Code, Label: z.Label})
	}

	for _, r := range cf.ZoneRules {
		kind := RuleKind(r.Match)
		switch kind {
		case RuleSameCity, RuleSameCircle, RuleSameRegion, RuleMetroToMetro, RuleSpecialDestination, RuleDefault:
		default:
			return nil, fmt.Errorf("%s/%s: unknown zone rule %q", cf.Carrier, cf.Service, r.Match)
		}
		if kind == RuleSpecialDestination && len(r.Prefixes) == 0 {
			return nil, fmt.Errorf("%s/%s: specialDestination rule needs prefixes", cf.Carrier, cf.Service)
		}
		card.Rules = append(card.Rules, ZoneRule{
			Kind:              kind,
			Zone:              r.Zone,
			Prefixes:          r.Prefixes,
			MaxRegionDistance: r.MaxRegionDistance,
		})
	}

	card.Forward = toSlabs(cf.Forward)

	rto, err := resolveSameAsForward(cf, card.Forward)
	if err != nil {
		return nil, err
	}
	card.RTO = rto

	for _, s := range cf.DTO {
		if s.SameAsForward {
			return nil, fmt.Errorf("%s/%s: dto slab %q cannot reference forward pricing", cf.Carrier, cf.Service, s.Label)
		}
	}
	card.DTO = toSlabs(cf.DTO)

	return card, nil
}

func toSlabs(files []slabFile) []Slab {
	slabs := make([]Slab, 0, len(files))
	for _, f := range files {
		slabs = append(slabs, toSlab(f, f.Prices))
	}
	return slabs
}

func toSlab(f slabFile, prices map[string]float64) Slab {
	s := Slab{
		Label:     f.Label,
		From:      decimal.NewFromFloat(f.FromKg),
		To:        decimal.NewFromFloat(f.ToKg),
		Increment: decimal.NewFromFloat(f.IncrementKg),
		Prices:    make(map[string]decimal.Decimal, len(prices)),
	}
	for zone, p := range prices {
		s.Prices[zone] = decimal.NewFromFloat(p)
	}
	return s
}

// resolveSameAsForward expands RTO cross-references into concrete prices. A
// reference without bounds copies the whole forward schedule; a bounded
// reference copies the forward slab with the same bounds.
func resolveSameAsForward(cf cardFile, forward []Slab) ([]Slab, error) {
	if len(cf.RTO) == 1 && cf.RTO[0].SameAsForward && cf.RTO[0].FromKg == 0 && cf.RTO[0].ToKg == 0 && cf.RTO[0].IncrementKg == 0 {
		out := make([]Slab, len(forward))
		for i, s := range forward {
			out[i] = s
			out[i].Label = cf.RTO[0].Label + ": " + s.Label
		}
		return out, nil
	}

	out := make([]Slab, 0, len(cf.RTO))
	for _, f := range cf.RTO {
		if !f.SameAsForward {
			out = append(out, toSlab(f, f.Prices))
			continue
		}

		from := decimal.NewFromFloat(f.FromKg)
		to := decimal.NewFromFloat(f.ToKg)
		var match *Slab
		for i := range forward {
			if forward[i].From.Equal(from) && forward[i].To.Equal(to) {
				match = &forward[i]
				break
			}
		}
		if match == nil {
			return nil, fmt.Errorf("%s/%s: rto slab %q has no forward slab %s-%skg", cf.Carrier, cf.Service, f.Label, from, to)
		}

		s := *match
		s.Label = f.Label
		out = append(out, s)
	}
	return out, nil
}
