package application

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lms-platform/shipping-core/internal/domain"
	"github.com/lms-platform/shipping-core/pkg/logging"
	"github.com/lms-platform/shipping-core/pkg/metrics"
	"github.com/lms-platform/shipping-core/pkg/tracing"
)

// DefaultSweepBatchSize caps the shipments polled in one sweep
const DefaultSweepBatchSize = 500

// Per-AWB sweep outcomes
const (
	trackUpdated   = "updated"
	trackUnchanged = "unchanged"
	trackNoData    = "no_data"
	trackConflict  = "conflict"
	trackFailed    = "failed"
)

// SweepResult summarises one tracking sweep
type SweepResult struct {
	Skipped    bool          `json:"skipped"`
	Checked    int           `json:"checked"`
	Updated    int           `json:"updated"`
	Unchanged  int           `json:"unchanged"`
	Failed     int           `json:"failed"`
	NDRsRaised int           `json:"ndrsRaised"`
	Duration   time.Duration `json:"duration"`
}

// TrackingService polls carriers for shipped shipments and applies the
// tracking policy to what they report
type TrackingService struct {
	shipments domain.ShipmentRepository
	ndrs      domain.NDRRepository
	carriers  CarrierDirectory
	policy    domain.TrackingPolicy
	batchSize int
	running   atomic.Bool
	logger    *logging.Logger
	metrics   *metrics.Metrics
}

// NewTrackingService creates a new TrackingService
func NewTrackingService(
	shipments domain.ShipmentRepository,
	ndrs domain.NDRRepository,
	carriers CarrierDirectory,
	policy domain.TrackingPolicy,
	batchSize int,
	logger *logging.Logger,
	m *metrics.Metrics,
) *TrackingService {
	if batchSize <= 0 {
		batchSize = DefaultSweepBatchSize
	}
	return &TrackingService{
		shipments: shipments,
		ndrs:      ndrs,
		carriers:  carriers,
		policy:    policy,
		batchSize: batchSize,
		logger:    logger.WithComponent("tracking-service"),
		metrics:   m,
	}
}

// Sweep tracks every shipped shipment once. A sweep that starts while another
// is still running returns immediately with Skipped set. A failure for one
// AWB never stops the others.
func (s *TrackingService) Sweep(ctx context.Context) (*SweepResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.metrics.RecordTrackingSweep(metrics.SweepSkipped)
		s.logger.Info("Tracking sweep already running, skipping")
		return &SweepResult{Skipped: true}, nil
	}
	defer s.running.Store(false)

	ctx, span := tracing.Start(ctx, "tracking.sweep", trace.SpanKindInternal,
		attribute.Int("sweep.batch_size", s.batchSize))

	start := time.Now()
	shipments, err := s.shipments.FindTrackable(ctx, s.batchSize)
	if err != nil {
		s.metrics.RecordTrackingSweep(metrics.SweepFailed)
		err = fmt.Errorf("failed to load trackable shipments: %w", err)
		tracing.End(span, err)
		return nil, err
	}

	result := &SweepResult{}
	for _, shipment := range shipments {
		if ctx.Err() != nil {
			break
		}
		result.Checked++

		outcome, raised, err := s.track(ctx, shipment)
		if err != nil {
			s.logger.WithError(err).Warn("Failed to track shipment",
				"awb", shipment.AWB,
				"shipmentId", shipment.ShipmentID,
				"carrier", shipment.PartnerDetails.CarrierName,
			)
		}
		s.metrics.RecordTrackingUpdate(shipment.PartnerDetails.CarrierName, outcome)

		switch outcome {
		case trackUpdated:
			result.Updated++
		case trackFailed, trackConflict:
			result.Failed++
		default:
			result.Unchanged++
		}
		if raised {
			result.NDRsRaised++
		}
	}

	result.Duration = time.Since(start)
	s.metrics.RecordTrackingSweep(metrics.SweepCompleted)
	s.logger.Performance(ctx, "tracking_sweep", result.Duration, result.Failed == 0, map[string]any{
		"checked":    result.Checked,
		"updated":    result.Updated,
		"failed":     result.Failed,
		"ndrsRaised": result.NDRsRaised,
	})
	span.SetAttributes(
		attribute.Int("sweep.checked", result.Checked),
		attribute.Int("sweep.updated", result.Updated),
		attribute.Int("sweep.failed", result.Failed),
	)
	tracing.End(span, ctx.Err())
	return result, ctx.Err()
}

// track applies the latest carrier snapshot of one shipment. Snapshots not
// newer than the last applied one are ignored, so overlapping runs are
// harmless. Nothing is stored unless the whole update commits.
func (s *TrackingService) track(ctx context.Context, shipment *domain.Shipment) (string, bool, error) {
	adapter, err := s.carriers.Get(shipment.PartnerDetails.CarrierName)
	if err != nil {
		return trackFailed, false, err
	}

	snap, err := adapter.Track(ctx, shipment.AWB)
	if err != nil {
		return trackFailed, false, err
	}
	if snap == nil {
		return trackNoData, false, nil
	}
	if !shipment.IsNewSnapshot(snap.Timestamp) {
		return trackUnchanged, false, nil
	}

	openNDR, err := s.ndrs.FindOpenByAWB(ctx, shipment.AWB)
	if err != nil {
		return trackFailed, false, fmt.Errorf("failed to load ndr: %w", err)
	}

	from := shipment.Status
	decision := s.policy.Decide(shipment.Status, snap, openNDR)

	ndr, raised, err := s.apply(shipment, snap, openNDR, decision)
	if err != nil {
		return trackFailed, false, err
	}
	shipment.MarkTracked(snap.Timestamp, snap.FailedAttempts)

	update := &domain.TrackingUpdate{Shipment: shipment, NDR: ndr}
	if shipment.Status != from && !shipment.Reverse {
		update.OrderStatus = domain.OrderStatusFor(shipment.Status)
	}
	if err := s.shipments.SaveTracked(ctx, update); err != nil {
		if stderrors.Is(err, domain.ErrConcurrentModification) {
			return trackConflict, false, err
		}
		return trackFailed, false, fmt.Errorf("failed to save tracking update: %w", err)
	}

	if raised {
		s.metrics.RecordNDRRaised(ndr.Courier, string(ndr.FailureReason))
	}
	if shipment.Status != from {
		s.metrics.RecordShipmentTransition(string(from), string(shipment.Status))
		s.logger.Info("Shipment status changed",
			"shipmentId", shipment.ShipmentID,
			"awb", shipment.AWB,
			"from", from,
			"to", shipment.Status,
			"decision", decision,
		)
	}
	return trackUpdated, raised, nil
}

// apply performs the decided transition on the shipment and returns the NDR
// record to persist, if any
func (s *TrackingService) apply(shipment *domain.Shipment, snap *domain.ShipmentStatusSnapshot, openNDR *domain.NDRRecord, decision domain.TrackingDecision) (*domain.NDRRecord, bool, error) {
	at := snap.Timestamp

	switch decision {
	case domain.DecisionDeliver:
		if err := shipment.MarkDelivered(at, snap.Location); err != nil {
			return nil, false, err
		}
		return resolveNDR(openNDR, domain.NDRDelivered, at)

	case domain.DecisionRTO:
		if err := shipment.InitiateRTO(at, snap.Location, snap.Remarks); err != nil {
			return nil, false, err
		}
		return resolveNDR(openNDR, domain.NDRReturned, at)

	case domain.DecisionLost:
		return nil, false, shipment.MarkLost(at, snap.Remarks)

	case domain.DecisionCancel:
		return nil, false, shipment.Cancel(at, snap.Remarks)

	case domain.DecisionRaiseNDR:
		shipment.RecordScan(snap.CarrierStatus, at, snap.Location, snap.Remarks)
		return domain.NewNDRRecord(shipment, snap.FailureReason, snap.Remarks, snap.FailedAttempts, at), true, nil

	case domain.DecisionUpdateNDR:
		shipment.RecordScan(snap.CarrierStatus, at, snap.Location, snap.Remarks)
		openNDR.UpdateAttempts(snap.FailedAttempts, snap.FailureReason, snap.Remarks, at)
		return openNDR, false, nil
	}

	shipment.RecordScan(snap.CarrierStatus, at, snap.Location, snap.Remarks)
	return nil, false, nil
}

func resolveNDR(open *domain.NDRRecord, to domain.NDRStatus, at time.Time) (*domain.NDRRecord, bool, error) {
	if open == nil {
		return nil, false, nil
	}
	if err := open.Resolve(to, at); err != nil {
		return nil, false, err
	}
	return open, false, nil
}

// IsRunning reports whether a sweep is in progress
func (s *TrackingService) IsRunning() bool {
	return s.running.Load()
}
