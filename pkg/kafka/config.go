package kafka

import (
	"time"
)

// Config holds Kafka producer configuration
type Config struct {
	Brokers  []string
	ClientID string

	BatchSize    int
	BatchTimeout time.Duration
	// RequiredAcks is 0 (none), 1 (leader) or -1 (all in-sync replicas)
	RequiredAcks int
	WriteTimeout time.Duration
}

// DefaultConfig waits for all replicas. Outbox rows are only marked
// published after the write is acknowledged.
func DefaultConfig() *Config {
	return &Config{
		Brokers:      []string{"localhost:9092"},
		ClientID:     "shipping-core",
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: -1,
		WriteTimeout: 10 * time.Second,
	}
}

// Topics shipping-core publishes to, one per aggregate family
var Topics = struct {
	ShipmentEvents   string
	NDREvents        string
	WalletEvents     string
	RemittanceEvents string
}{
	ShipmentEvents:   "lms.shipments.events",
	NDREvents:        "lms.ndr.events",
	WalletEvents:     "lms.wallet.events",
	RemittanceEvents: "lms.remittance.events",
}
