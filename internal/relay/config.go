package relay

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type Config struct {
	HTTPPort uint16 `json:"http_port" yaml:"http_port"`

	Upstream    UpstreamConfig    `json:"upstream" yaml:"upstream"`
	Persistence PersistenceConfig `json:"persistence" yaml:"persistence"`
	Billing     BillingConfig     `json:"billing" yaml:"billing"`

	HeartbeatInterval time.Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`
	BackupInterval    time.Duration `json:"backup_interval" yaml:"backup_interval"`
	SessionTTL        time.Duration `json:"session_ttl" yaml:"session_ttl"`
}

type UpstreamConfig struct {
	Address           string        `json:"address" yaml:"address"`
	SessionCode       string        `json:"session_code" yaml:"session_code"`
	VenueCode         string        `json:"venue_code" yaml:"venue_code"`
	ReconnectInterval time.Duration `json:"reconnect_interval" yaml:"reconnect_interval"`
	SubscribeDelay    time.Duration `json:"subscribe_delay" yaml:"subscribe_delay"`
}

type PersistenceConfig struct {
	SessionStatsURL string `json:"session_stats_url" yaml:"session_stats_url"`
	LapDataURL      string `json:"lap_data_url" yaml:"lap_data_url"`
}

// BillingConfig holds the session-name markers which decide whether a
// session is billable. The markers are compared case-insensitively.
type BillingConfig struct {
	HeatMarker           string        `json:"heat_marker" yaml:"heat_marker"`
	RaceMarker           string        `json:"race_marker" yaml:"race_marker"`
	ClassificationMarker string        `json:"classification_marker" yaml:"classification_marker"`
	RecordWindow         time.Duration `json:"record_window" yaml:"record_window"`
}

func DefaultConfig() *Config {
	return &Config{
		HTTPPort: 8090,
		Upstream: UpstreamConfig{
			ReconnectInterval: time.Second * 5,
			SubscribeDelay:    time.Second,
		},
		Billing: BillingConfig{
			HeatMarker:           "heat",
			RaceMarker:           "race",
			ClassificationMarker: "classification",
			RecordWindow:         time.Minute * 5,
		},
		HeartbeatInterval: time.Second * 30,
		BackupInterval:    time.Minute * 2,
		SessionTTL:        time.Hour,
	}
}

// ReadConfig loads the yaml config at path on top of the defaults, then
// applies environment overrides for the deployment-level settings.
func ReadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	f, err := os.Open(path)

	if err != nil {
		return nil, errors.Wrapf(err, "could not open config: %s", path)
	}

	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(config); err != nil {
		return nil, errors.Wrapf(err, "could not decode config: %s", path)
	}

	config.applyEnvironment()

	return config, nil
}

func (c *Config) applyEnvironment() {
	if port, ok := os.LookupEnv("KARTRELAY_HTTP_PORT"); ok {
		if p, err := strconv.ParseUint(port, 10, 16); err == nil {
			c.HTTPPort = uint16(p)
		}
	}

	if address, ok := os.LookupEnv("KARTRELAY_UPSTREAM_ADDRESS"); ok {
		c.Upstream.Address = address
	}

	if statsURL, ok := os.LookupEnv("KARTRELAY_SESSION_STATS_URL"); ok {
		c.Persistence.SessionStatsURL = statsURL
	}

	if lapURL, ok := os.LookupEnv("KARTRELAY_LAP_DATA_URL"); ok {
		c.Persistence.LapDataURL = lapURL
	}
}

// Validate fixes up values which would break the relay's timers,
// warning rather than failing, so a partial config still runs.
func (c *Config) Validate(logger Logger) {
	defaults := DefaultConfig()

	if c.Upstream.ReconnectInterval <= 0 {
		logger.Warnf("Invalid upstream reconnect interval. Using default of %s", defaults.Upstream.ReconnectInterval)
		c.Upstream.ReconnectInterval = defaults.Upstream.ReconnectInterval
	}

	if c.HeartbeatInterval <= 0 {
		logger.Warnf("Invalid heartbeat interval. Using default of %s", defaults.HeartbeatInterval)
		c.HeartbeatInterval = defaults.HeartbeatInterval
	}

	if c.BackupInterval <= 0 {
		logger.Warnf("Invalid backup interval. Using default of %s", defaults.BackupInterval)
		c.BackupInterval = defaults.BackupInterval
	}

	if c.SessionTTL <= 0 {
		logger.Warnf("Invalid session TTL. Using default of %s", defaults.SessionTTL)
		c.SessionTTL = defaults.SessionTTL
	}

	if c.Billing.RecordWindow <= 0 {
		logger.Warnf("Invalid billing record window. Using default of %s", defaults.Billing.RecordWindow)
		c.Billing.RecordWindow = defaults.Billing.RecordWindow
	}
}
