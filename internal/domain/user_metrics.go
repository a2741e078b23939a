package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/lms-platform/shipping-core/pkg/money"
)

// StatusCount is the number of a user's shipments in one status
type StatusCount struct {
	UserID string
	Status ShipmentStatus
	Count  int64
}

// UserMetrics is the periodically recomputed dashboard summary of a user
type UserMetrics struct {
	UserID           string           `bson:"userId" json:"userId"`
	TotalShipments   int64            `bson:"totalShipments" json:"totalShipments"`
	ByStatus         map[string]int64 `bson:"byStatus" json:"byStatus"`
	DeliveredPercent float64          `bson:"deliveredPercent" json:"deliveredPercent"`
	RTOPercent       float64          `bson:"rtoPercent" json:"rtoPercent"`
	OpenNDRs         int64            `bson:"openNdrs" json:"openNdrs"`
	UnremittedCOD    money.Amount     `bson:"unremittedCod" json:"unremittedCod"`
	ComputedAt       time.Time        `bson:"computedAt" json:"computedAt"`
}

// NewUserMetrics folds status counts into a summary. RTO includes shipments promoted to RTC.
func NewUserMetrics(userID string, counts []StatusCount, openNDRs int64, unremitted decimal.Decimal, at time.Time) *UserMetrics {
	m := &UserMetrics{
		UserID:        userID,
		ByStatus:      make(map[string]int64),
		OpenNDRs:      openNDRs,
		UnremittedCOD: money.New(unremitted),
		ComputedAt:    at,
	}

	for _, c := range counts {
		m.ByStatus[string(c.Status)] += c.Count
		m.TotalShipments += c.Count
	}

	if m.TotalShipments > 0 {
		total := float64(m.TotalShipments)
		m.DeliveredPercent = round2(float64(m.ByStatus[string(ShipmentStatusDelivered)]) * 100 / total)
		returned := m.ByStatus[string(ShipmentStatusRTO)] + m.ByStatus[string(ShipmentStatusRTC)]
		m.RTOPercent = round2(float64(returned) * 100 / total)
	}
	return m
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
