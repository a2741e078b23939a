package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/lms-platform/shipping-core/internal/domain"
	"github.com/lms-platform/shipping-core/internal/pricing"
	"github.com/lms-platform/shipping-core/pkg/logging"
	"github.com/lms-platform/shipping-core/pkg/metrics"
)

// DefaultQuoteTimeout bounds every quote source of an aggregation
const DefaultQuoteTimeout = 5 * time.Second

// CarrierDirectory resolves carrier adapters
type CarrierDirectory interface {
	Get(name string) (domain.CarrierAdapter, error)
	All() []domain.CarrierAdapter
}

// RateService compares internal rate cards and live carrier quotes
type RateService struct {
	catalog  *pricing.Catalog
	carriers CarrierDirectory
	timeout  time.Duration
	logger   *logging.Logger
	metrics  *metrics.Metrics
}

// NewRateService creates a new RateService
func NewRateService(
	catalog *pricing.Catalog,
	carriers CarrierDirectory,
	timeout time.Duration,
	logger *logging.Logger,
	m *metrics.Metrics,
) *RateService {
	if timeout <= 0 {
		timeout = DefaultQuoteTimeout
	}
	return &RateService{
		catalog:  catalog,
		carriers: carriers,
		timeout:  timeout,
		logger:   logger.WithComponent("rate-service"),
		metrics:  m,
	}
}

type quoteOutcome struct {
	source  string
	charges []domain.ChargeBreakdown
	failed  bool
}

// Aggregate prices q with every card of the tier and every carrier adapter
// concurrently. Sources that cannot quote are omitted; sources that fail are
// listed in Unavailable. Only an unknown tier fails the whole request.
func (s *RateService) Aggregate(ctx context.Context, q RateQuery, tier string) (*RateResult, error) {
	start := time.Now()
	table := s.catalog.Current()

	cards, err := table.CardsForTier(tier)
	if err != nil {
		return nil, err
	}

	pq := q.toPricingQuery()
	adapters := s.carriers.All()
	outcomes := make([]quoteOutcome, len(cards)+len(adapters))

	// sources report failure in their outcome, never through the group
	var g errgroup.Group
	for i, tc := range cards {
		g.Go(func() error {
			outcomes[i] = s.internalQuote(tc, pq)
			return nil
		})
	}
	for i, a := range adapters {
		g.Go(func() error {
			outcomes[len(cards)+i] = s.liveQuote(ctx, a, q, "")
			return nil
		})
	}
	_ = g.Wait()

	result := &RateResult{
		Tier:         tier,
		TableVersion: table.Version(),
		Quotes:       make([]domain.ChargeBreakdown, 0, len(outcomes)),
	}
	for _, o := range outcomes {
		switch {
		case o.failed:
			result.Unavailable = append(result.Unavailable, o.source)
		default:
			result.Quotes = append(result.Quotes, o.charges...)
		}
	}
	SortQuotes(result.Quotes)
	sort.Strings(result.Unavailable)

	s.logger.Performance(ctx, "aggregate_rates", time.Since(start), true, map[string]any{
		"tier":        tier,
		"quotes":      len(result.Quotes),
		"unavailable": len(result.Unavailable),
	})
	return result, nil
}

func (s *RateService) internalQuote(tc pricing.TierCard, pq pricing.Query) quoteOutcome {
	source := tc.Card.Carrier + "/" + tc.Card.Service
	charge, err := pricing.Price(tc, pq)
	if err != nil {
		s.logger.Debug("Rate card cannot price query", "card", source, "error", err.Error())
		s.metrics.RecordCarrierQuote(tc.Card.Carrier, metrics.QuoteUnavailable)
		return quoteOutcome{source: source}
	}
	s.metrics.RecordCarrierQuote(tc.Card.Carrier, metrics.QuoteOK)
	return quoteOutcome{source: source, charges: []domain.ChargeBreakdown{charge}}
}

// liveQuote asks one adapter under its own deadline. The result is abandoned
// once the deadline passes even if the adapter ignores cancellation. Without
// a service, adapters that price several products return all of them.
func (s *RateService) liveQuote(ctx context.Context, a domain.CarrierAdapter, q RateQuery, service string) quoteOutcome {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type reply struct {
		charges []domain.ChargeBreakdown
		err     error
	}
	ch := make(chan reply, 1)
	go func() {
		req := toQuoteRequest(q, service)
		if quoter, ok := a.(domain.ServiceQuoter); ok && service == "" {
			charges, err := quoter.QuoteServices(ctx, req)
			ch <- reply{charges: charges, err: err}
			return
		}
		charge, err := a.Quote(ctx, req)
		var charges []domain.ChargeBreakdown
		if charge != nil {
			charges = []domain.ChargeBreakdown{*charge}
		}
		ch <- reply{charges: charges, err: err}
	}()

	var r reply
	select {
	case r = <-ch:
	case <-ctx.Done():
		r = reply{err: ctx.Err()}
	}

	carrier := a.Name()
	switch {
	case r.err != nil:
		outcome := metrics.QuoteError
		if errors.Is(r.err, context.DeadlineExceeded) {
			outcome = metrics.QuoteTimeout
		}
		s.metrics.RecordCarrierQuote(carrier, outcome)
		s.logger.WithError(r.err).Warn("Carrier quote failed", "carrier", carrier)
		return quoteOutcome{source: carrier, failed: true}
	case len(r.charges) == 0:
		s.metrics.RecordCarrierQuote(carrier, metrics.QuoteUnavailable)
		return quoteOutcome{source: carrier}
	}

	s.metrics.RecordCarrierQuote(carrier, metrics.QuoteOK)
	return quoteOutcome{source: carrier, charges: r.charges}
}

// QuoteFor prices one carrier service for a tier. The tier's rate card is
// used when it offers the service; otherwise the carrier is asked live.
// A selection nobody can price fails with domain.ErrNoPricing.
func (s *RateService) QuoteFor(ctx context.Context, q RateQuery, tier, carrier, service string) (*domain.ChargeBreakdown, error) {
	tc, ok, err := s.catalog.Current().Card(tier, carrier, service)
	if err != nil {
		return nil, err
	}
	if ok {
		charge, err := pricing.Price(tc, q.toPricingQuery())
		if err != nil {
			return nil, err
		}
		return &charge, nil
	}

	adapter, err := s.carriers.Get(carrier)
	if err != nil {
		return nil, err
	}
	out := s.liveQuote(ctx, adapter, q, service)
	if out.failed {
		return nil, fmt.Errorf("carrier %s could not be reached for a quote: %w", carrier, domain.ErrNoPricing)
	}
	if len(out.charges) == 0 {
		return nil, fmt.Errorf("%s %s: %w", carrier, service, domain.ErrNoPricing)
	}
	return &out.charges[0], nil
}

// SortQuotes orders quotes by total, then carrier name, then service type
func SortQuotes(quotes []domain.ChargeBreakdown) {
	sort.SliceStable(quotes, func(i, j int) bool {
		a, b := quotes[i], quotes[j]
		if c := a.TotalCharge.Cmp(b.TotalCharge.Decimal); c != 0 {
			return c < 0
		}
		if a.CarrierName != b.CarrierName {
			return a.CarrierName < b.CarrierName
		}
		return a.ServiceType < b.ServiceType
	})
}

func toQuoteRequest(q RateQuery, service string) domain.QuoteRequest {
	actual := decimal.NewFromFloat(q.WeightKg)
	return domain.QuoteRequest{
		OriginPincode:      q.OriginPincode,
		DestinationPincode: q.DestinationPincode,
		ChargeableWeightKg: pricing.ChargeableWeight(actual, q.volumetricKg(), decimal.Zero),
		OrderType:          domain.OrderType(q.OrderType),
		CollectableValue:   q.CollectableValue,
		DeclaredValue:      q.DeclaredValue,
		ServiceType:        service,
		Reverse:            q.direction() == domain.DirectionReverse,
	}
}
