package pricing

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lms-platform/shipping-core/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func mustDefaultTable(t *testing.T) *Table {
	t.Helper()
	table, err := DefaultTable()
	require.NoError(t, err)
	return table
}

func mustCard(t *testing.T, table *Table, tier, carrier, service string) TierCard {
	t.Helper()
	tc, ok, err := table.Card(tier, carrier, service)
	require.NoError(t, err)
	require.True(t, ok, "%s does not offer %s/%s", tier, carrier, service)
	return tc
}

func TestDefaultTable(t *testing.T) {
	table := mustDefaultTable(t)

	assert.Equal(t, "2026.10.1", table.Version())
	assert.Equal(t, []string{"bronze", "custom", "gold", "platinum", "silver"}, table.Tiers())

	cards, err := table.CardsForTier("custom")
	require.NoError(t, err)
	assert.Len(t, cards, 2)

	_, err = table.CardsForTier("diamond")
	var ute *domain.UnknownTierError
	assert.ErrorAs(t, err, &ute)
}

func TestComputeCharge_BronzeSurfaceScenario(t *testing.T) {
	table := mustDefaultTable(t)
	tc := mustCard(t, table, "bronze", "delhivery", "surface")

	charge, err := ComputeCharge(ChargeInput{
		Card:             tc.Card,
		Multiplier:       tc.Multiplier,
		Zone:             "a",
		ChargeableWeight: d("1.0"),
		OrderType:        domain.OrderTypePrepaid,
	})
	require.NoError(t, err)

	assert.True(t, charge.FreightCharge.Equal(d("130")), "freight %s", charge.FreightCharge)
	assert.True(t, charge.CODCharge.IsZero())
	assert.True(t, charge.FuelSurcharge.IsZero())
	assert.Equal(t, "130.00", charge.TotalCharge.String())
	assert.Equal(t, domain.SourceInternalRateCard, charge.SourceKind)
}

func TestComputeCharge_SlabWalk(t *testing.T) {
	table := mustDefaultTable(t)
	card := mustCard(t, table, "bronze", "delhivery", "surface").Card

	tests := []struct {
		weight   string
		expected string
	}{
		{"0.25", "77.5"},
		{"0.5", "95"},
		{"0.75", "130"},
		{"5", "410"},
		{"5.5", "470"},
		{"7", "530"},
	}

	for _, tt := range tests {
		t.Run(tt.weight, func(t *testing.T) {
			charge, err := ComputeCharge(ChargeInput{Card: card, Zone: "a", ChargeableWeight: d(tt.weight), OrderType: domain.OrderTypePrepaid})
			require.NoError(t, err)
			assert.True(t, charge.TotalCharge.Equal(d(tt.expected)), "got %s", charge.TotalCharge.Decimal)
		})
	}
}

func TestCODCharge_Floor(t *testing.T) {
	rule := CODRule{Percent: d("2.25"), Minimum: d("60")}

	tests := []struct {
		name        string
		collectable string
		expected    string
	}{
		{"percentage below floor uses floor", "500", "60"},
		{"percentage just above floor", "2666.67", "60.000075"},
		{"percentage above floor", "4000", "90"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, CODCharge(rule, d(tt.collectable)).Equal(d(tt.expected)))
		})
	}

	noFloor := CODRule{Percent: d("1.5")}
	assert.True(t, CODCharge(noFloor, d("500")).Equal(d("7.5")))
}

func TestComputeCharge_GoldCODScenario(t *testing.T) {
	table := mustDefaultTable(t)
	tc := mustCard(t, table, "gold", "delhivery", "surface")

	charge, err := ComputeCharge(ChargeInput{
		Card:             tc.Card,
		Multiplier:       tc.Multiplier,
		Zone:             "a",
		ChargeableWeight: d("0.5"),
		OrderType:        domain.OrderTypeCOD,
		CollectableValue: d("500"),
		DeclaredValue:    d("500"),
	})
	require.NoError(t, err)

	assert.True(t, charge.CODCharge.Equal(d("60")))
	assert.True(t, charge.FreightCharge.Equal(d("76")), "freight %s", charge.FreightCharge.Decimal)
	assert.True(t, charge.TotalCharge.Equal(d("136")))
}

func TestComputeCharge_MonotonicInWeight(t *testing.T) {
	table := mustDefaultTable(t)
	cards, err := table.CardsForTier("bronze")
	require.NoError(t, err)

	step := d("0.1")
	for _, tc := range cards {
		for _, zone := range tc.Card.Zones {
			prev := decimal.Zero
			for w := step; w.LessThanOrEqual(d("10")); w = w.Add(step) {
				charge, err := ComputeCharge(ChargeInput{Card: tc.Card, Multiplier: tc.Multiplier, Zone: zone.Code, ChargeableWeight: w, OrderType: domain.OrderTypePrepaid})
				require.NoError(t, err)
				require.True(t, charge.TotalCharge.GreaterThanOrEqual(prev),
					"%s/%s zone %s: %s at %skg below %s", tc.Card.Carrier, tc.Card.Service, zone.Code, charge.TotalCharge.Decimal, w, prev)
				prev = charge.TotalCharge.Decimal
			}
		}
	}
}

func TestComputeCharge_MultiplierScaling(t *testing.T) {
	table := mustDefaultTable(t)
	bronze := mustCard(t, table, "bronze", "delhivery", "express")
	gold := mustCard(t, table, "gold", "delhivery", "express")

	for _, w := range []string{"0.5", "1.5", "4"} {
		in := ChargeInput{Card: bronze.Card, Zone: "d", ChargeableWeight: d(w), OrderType: domain.OrderTypePrepaid}

		in.Multiplier = bronze.Multiplier
		low, err := ComputeCharge(in)
		require.NoError(t, err)

		in.Multiplier = gold.Multiplier
		high, err := ComputeCharge(in)
		require.NoError(t, err)

		ratio := high.TotalCharge.Div(low.TotalCharge.Decimal)
		expected := gold.Multiplier.Div(bronze.Multiplier)
		assert.True(t, ratio.Sub(expected).Abs().LessThan(d("0.000001")), "ratio %s at %skg", ratio, w)
	}
}

func TestComputeCharge_Directions(t *testing.T) {
	table := mustDefaultTable(t)
	surface := mustCard(t, table, "bronze", "delhivery", "surface").Card
	express := mustCard(t, table, "bronze", "delhivery", "express").Card

	price := func(card *RateCard, dir domain.Direction, zone, w string) (domain.ChargeBreakdown, error) {
		return ComputeCharge(ChargeInput{Card: card, Zone: zone, ChargeableWeight: d(w), OrderType: domain.OrderTypePrepaid, Direction: dir})
	}

	t.Run("rto same as forward resolves to forward price", func(t *testing.T) {
		fwd, err := price(surface, domain.DirectionForward, "d2", "2.5")
		require.NoError(t, err)
		rto, err := price(surface, domain.DirectionRTO, "d2", "2.5")
		require.NoError(t, err)
		assert.True(t, rto.TotalCharge.IsPositive())
		assert.True(t, fwd.TotalCharge.Equal(rto.TotalCharge.Decimal))
	})

	t.Run("bounded rto reference", func(t *testing.T) {
		rto, err := price(express, domain.DirectionRTO, "c", "1")
		require.NoError(t, err)
		assert.True(t, rto.FreightCharge.Equal(d("174")), "got %s", rto.FreightCharge.Decimal)
	})

	t.Run("dto priced independently", func(t *testing.T) {
		dto, err := price(surface, domain.DirectionReverse, "a", "1")
		require.NoError(t, err)
		assert.True(t, dto.FreightCharge.Equal(d("137")))
	})

	t.Run("dto never falls back to forward", func(t *testing.T) {
		_, err := price(express, domain.DirectionReverse, "a", "1")
		assert.ErrorIs(t, err, domain.ErrNoPricing)
	})
}

func TestComputeCharge_Errors(t *testing.T) {
	table := mustDefaultTable(t)
	xb := mustCard(t, table, "bronze", "xpressbees", "surface").Card

	_, err := ComputeCharge(ChargeInput{Card: xb, Zone: "a", ChargeableWeight: d("10.5"), OrderType: domain.OrderTypePrepaid})
	var wore *domain.WeightOutOfRangeError
	require.ErrorAs(t, err, &wore)
	assert.True(t, wore.MaxKg.Equal(d("10")))

	_, err = ComputeCharge(ChargeInput{Card: xb, Zone: "z", ChargeableWeight: d("1"), OrderType: domain.OrderTypePrepaid})
	assert.ErrorIs(t, err, domain.ErrNoPricing)
}

func TestChargeableWeight(t *testing.T) {
	tests := []struct {
		actual, volumetric, step, expected string
	}{
		{"0.3", "0", "0.5", "0.5"},
		{"1.0", "0.4", "0.5", "1"},
		{"1.01", "0", "0.5", "1.5"},
		{"0.8", "2.2", "1", "3"},
		{"1.2", "0", "0", "1.2"},
	}
	for _, tt := range tests {
		got := ChargeableWeight(d(tt.actual), d(tt.volumetric), d(tt.step))
		assert.True(t, got.Equal(d(tt.expected)), "%s/%s step %s: got %s", tt.actual, tt.volumetric, tt.step, got)
	}

	assert.True(t, VolumetricWeight(d("50"), d("40"), d("10")).Equal(d("4")))
}

func TestClassify(t *testing.T) {
	table := mustDefaultTable(t)
	surface := mustCard(t, table, "bronze", "delhivery", "surface").Card
	express := mustCard(t, table, "bronze", "delhivery", "express").Card
	one := d("1")

	tests := []struct {
		name        string
		card        *RateCard
		origin      string
		destination string
		expected    string
	}{
		{"same city", surface, "110001", "110020", "a"},
		{"same circle", surface, "560001", "562101", "b"},
		{"north east", surface, "110001", "781001", "e"},
		{"jammu", surface, "110001", "180001", "f"},
		{"andaman", surface, "600001", "744101", "f"},
		{"metro near", surface, "400001", "380001", "c1"},
		{"metro far", surface, "110001", "560001", "c2"},
		{"rest of india near", surface, "302001", "452001", "d1"},
		{"rest of india far", surface, "302001", "682001", "d2"},
		{"express collapses bands", express, "302001", "682001", "d"},
		{"express metro", express, "110001", "560001", "c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			zone, err := Classify(tt.origin, tt.destination, one, tt.card)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, zone)
		})
	}
}

func TestClassify_Unclassifiable(t *testing.T) {
	table := mustDefaultTable(t)
	card := mustCard(t, table, "bronze", "delhivery", "surface").Card

	for _, lane := range [][2]string{{"11001", "560001"}, {"110001", "056000"}, {"11000A", "560001"}} {
		_, err := Classify(lane[0], lane[1], d("1"), card)
		var uze *domain.UnclassifiableZoneError
		assert.ErrorAs(t, err, &uze, "%v", lane)
	}

	noDefault := &RateCard{Carrier: "x", Service: "y", Zones: []Zone{{Code: "a"}}, Rules: []ZoneRule{{Kind: RuleSameCity, Zone: "a"}}}
	_, err := Classify("110001", "560001", d("1"), noDefault)
	var uze *domain.UnclassifiableZoneError
	assert.ErrorAs(t, err, &uze)
}

func TestPrice(t *testing.T) {
	table := mustDefaultTable(t)
	tc := mustCard(t, table, "bronze", "delhivery", "surface")

	charge, err := Price(tc, Query{
		OriginPincode:      "110001",
		DestinationPincode: "110045",
		ActualWeightKg:     d("0.8"),
		VolumetricWeightKg: d("0.3"),
		OrderType:          domain.OrderTypePrepaid,
	})
	require.NoError(t, err)
	assert.Equal(t, "a", charge.Zone)
	assert.Equal(t, 1.0, charge.ChargedWeight)
	assert.True(t, charge.TotalCharge.Equal(d("130")))
}

const fixtureTable = `
version: "test"
cards:
  - carrier: acme
    service: std
    weightStepKg: 0.5
    cod: { percent: 2 }
    zones: [{ code: a, label: A }]
    zoneRules: [{ match: default, zone: ZONE_RULE }]
    forward:
      - { label: base, fromKg: 0, toKg: 0.5, prices: { SLAB_ZONE: 50 } }
    dto: DTO_ROWS
tiers:
  - name: bronze
    multiplier: 1
    partners: [{ carrier: acme, service: PARTNER_SERVICE }]
`

func fixture(zoneRule, slabZone, dto, partner string) string {
	r := strings.NewReplacer("ZONE_RULE", zoneRule, "SLAB_ZONE", slabZone, "DTO_ROWS", dto, "PARTNER_SERVICE", partner)
	return r.Replace(fixtureTable)
}

func TestLoadTable_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"valid", fixture("a", "a", "[]", "std"), ""},
		{"rule references unknown zone", fixture("z", "a", "[]", "std"), `unknown zone "z"`},
		{"slab references unknown zone", fixture("a", "z", "[]", "std"), `unknown zone "z"`},
		{"tier references unknown card", fixture("a", "a", "[]", "express"), "unknown card acme/express"},
		{"dto cannot reference forward", fixture("a", "a", "[{ label: d, sameAsForward: true }]", "std"), "cannot reference forward"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := LoadTable(strings.NewReader(tt.yaml))
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "test", table.Version())
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCatalog_Publish(t *testing.T) {
	first := mustDefaultTable(t)
	second, err := LoadTable(strings.NewReader(fixture("a", "a", "[]", "std")))
	require.NoError(t, err)

	catalog := NewCatalog(first)
	assert.Same(t, first, catalog.Current())

	prev, err := catalog.Publish(second)
	require.NoError(t, err)
	assert.Same(t, first, prev)
	assert.Equal(t, "test", catalog.Current().Version())

	_, err = catalog.Publish(nil)
	assert.Error(t, err)
	assert.Equal(t, "test", catalog.Current().Version())
}
