package carriers

import "time"

// Config holds the credentials and endpoints of every carrier integration.
// A carrier is only registered when Enabled is set.
type Config struct {
	Timeout    time.Duration
	Delhivery  DelhiveryConfig
	Shiprocket ShiprocketConfig
	Xpressbees XpressbeesConfig
}

// DelhiveryConfig authenticates with a static API token
type DelhiveryConfig struct {
	Enabled        bool
	BaseURL        string
	Token          string
	PickupLocation string
}

// ShiprocketConfig authenticates with email and password for a bearer token
type ShiprocketConfig struct {
	Enabled  bool
	BaseURL  string
	Email    string
	Password string
	TokenTTL time.Duration
}

// XpressbeesConfig authenticates with email and password for a bearer token
type XpressbeesConfig struct {
	Enabled  bool
	BaseURL  string
	Email    string
	Password string
	TokenTTL time.Duration
}

// DefaultConfig returns production endpoints with every carrier disabled
func DefaultConfig() *Config {
	return &Config{
		Timeout: 5 * time.Second,
		Delhivery: DelhiveryConfig{
			BaseURL: "https://track.delhivery.com",
		},
		Shiprocket: ShiprocketConfig{
			BaseURL: "https://apiv2.shiprocket.in",
			// tokens are issued for 10 days
			TokenTTL: 9 * 24 * time.Hour,
		},
		Xpressbees: XpressbeesConfig{
			BaseURL:  "https://shipment.xpressbees.com",
			TokenTTL: 12 * time.Hour,
		},
	}
}

// FromEnv overlays DefaultConfig with CARRIER_* variables read through getenv.
// A carrier is enabled by setting its *_ENABLED variable to "true".
func FromEnv(getenv func(string) string) *Config {
	cfg := DefaultConfig()
	if d, err := time.ParseDuration(getenv("CARRIER_TIMEOUT")); err == nil && d > 0 {
		cfg.Timeout = d
	}

	cfg.Delhivery.Enabled = getenv("DELHIVERY_ENABLED") == "true"
	setIfPresent(&cfg.Delhivery.BaseURL, getenv("DELHIVERY_BASE_URL"))
	cfg.Delhivery.Token = getenv("DELHIVERY_TOKEN")
	cfg.Delhivery.PickupLocation = getenv("DELHIVERY_PICKUP_LOCATION")

	cfg.Shiprocket.Enabled = getenv("SHIPROCKET_ENABLED") == "true"
	setIfPresent(&cfg.Shiprocket.BaseURL, getenv("SHIPROCKET_BASE_URL"))
	cfg.Shiprocket.Email = getenv("SHIPROCKET_EMAIL")
	cfg.Shiprocket.Password = getenv("SHIPROCKET_PASSWORD")

	cfg.Xpressbees.Enabled = getenv("XPRESSBEES_ENABLED") == "true"
	setIfPresent(&cfg.Xpressbees.BaseURL, getenv("XPRESSBEES_BASE_URL"))
	cfg.Xpressbees.Email = getenv("XPRESSBEES_EMAIL")
	cfg.Xpressbees.Password = getenv("XPRESSBEES_PASSWORD")

	return cfg
}

func setIfPresent(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
