package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every setting of the sos-server process.
type Config struct {
	// Server holds listen addresses.
	Server ServerConfig `yaml:"server"`
	// Log holds logger settings.
	Log LogConfig `yaml:"log"`
	// Emergency holds alert lifecycle timings.
	Emergency EmergencyConfig `yaml:"emergency"`
	// Location holds resolver fallbacks.
	Location LocationConfig `yaml:"location"`
	// Carriers maps an operator name to its network-location API.
	Carriers map[string]CarrierConfig `yaml:"carriers"`
	// USSD holds accepted emergency USSD codes.
	USSD USSDConfig `yaml:"ussd"`
	// Storage selects the evidence content store.
	Storage StorageConfig `yaml:"storage"`
	// Redis configures the event stream publisher. Empty Addr disables it.
	Redis RedisConfig `yaml:"redis"`
	// MQTT configures wearable triggers and device commands. Empty Broker disables it.
	MQTT MQTTConfig `yaml:"mqtt"`
	// Postgres configures the alert archive. Empty DSN selects the file archive.
	Postgres PostgresConfig `yaml:"postgres"`
	// ArchiveFile is the JSON-lines file receiving terminal alerts.
	ArchiveFile string `yaml:"archive_file"`
	// EvidenceChainFile is the JSON-lines tamper-evidence hash chain.
	EvidenceChainFile string `yaml:"evidence_chain_file"`
	// DirectoryFile is the YAML file listing subjects and their contacts.
	DirectoryFile string `yaml:"directory_file"`
	// Housekeeping configures the periodic report job.
	Housekeeping HousekeepingConfig `yaml:"housekeeping"`
}

// ServerConfig holds listen addresses.
type ServerConfig struct {
	// GRPCAddress is the gRPC listen address.
	GRPCAddress string `yaml:"grpc_addr"`
	// HTTPAddress is the HTTP listen address for REST, websocket and metrics.
	HTTPAddress string `yaml:"http_addr"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is console or json.
	Format string `yaml:"format"`
}

// EmergencyConfig holds alert lifecycle timings.
type EmergencyConfig struct {
	// ResponseTimeout is how long an alert stays active before escalation.
	ResponseTimeout time.Duration `yaml:"response_timeout"`
	// TrackingInterval is the polling period of continuous tracking.
	TrackingInterval time.Duration `yaml:"tracking_interval"`
	// TierTimeout bounds each location resolution tier.
	TierTimeout time.Duration `yaml:"tier_timeout"`
	// DispatchTimeout bounds each fire-and-forget collaborator call.
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"`
	// CallDelay is the pause between emergency voice calls.
	CallDelay time.Duration `yaml:"call_delay"`
	// Tombstones is how many terminated alert ids are remembered.
	Tombstones int `yaml:"tombstones"`
}

// LocationConfig holds resolver fallbacks.
type LocationConfig struct {
	// DefaultOperator is used when no prefix range matches.
	DefaultOperator string `yaml:"default_operator"`
	// DefaultCircle is used when the circle is unknown or absent.
	DefaultCircle string `yaml:"default_circle"`
	// StaticAccuracy is the accuracy radius of static fixes in meters.
	StaticAccuracy float64 `yaml:"static_accuracy_m"`
	// DeviceTTL is how long a device-reported fix stays usable.
	DeviceTTL time.Duration `yaml:"device_ttl"`
}

// CarrierConfig describes one operator network-location API.
type CarrierConfig struct {
	// BaseURL of the operator API.
	BaseURL string `yaml:"base_url"`
	// APIKey authenticates requests. An empty key leaves the operator unconfigured.
	APIKey string `yaml:"api_key"`
	// RatePerSecond limits outgoing requests.
	RatePerSecond float64 `yaml:"rate_per_second"`
	// Burst is the limiter bucket size.
	Burst int `yaml:"burst"`
}

// USSDConfig holds accepted emergency USSD codes.
type USSDConfig struct {
	EmergencyCode string `yaml:"emergency_code"`
	ServiceCode   string `yaml:"service_code"`
}

// StorageConfig selects the evidence content store.
type StorageConfig struct {
	// Minio is used when Endpoint is set.
	Minio MinioConfig `yaml:"minio"`
	// LocalDir is used when MinIO is not configured.
	LocalDir string `yaml:"local_dir"`
}

// MinioConfig holds S3-compatible object storage settings.
type MinioConfig struct {
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Bucket     string `yaml:"bucket"`
	UseSSL     bool   `yaml:"use_ssl"`
	PublicBase string `yaml:"public_base"`
}

// RedisConfig configures the event stream publisher.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
	// MaxLen caps the stream length approximately.
	MaxLen int64 `yaml:"max_len"`
}

// MQTTConfig configures wearable triggers and device commands.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// WearableTopic is subscribed for wearable panic payloads.
	WearableTopic string `yaml:"wearable_topic"`
	// CommandTopic is a fmt pattern receiving the subject id, e.g. "devices/%s/commands".
	CommandTopic string `yaml:"command_topic"`
}

// PostgresConfig configures the alert archive.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// HousekeepingConfig configures the periodic report job.
type HousekeepingConfig struct {
	// Schedule is a cron expression.
	Schedule string `yaml:"schedule"`
	// StaleAfter flags alerts active for longer than this.
	StaleAfter time.Duration `yaml:"stale_after"`
}

const (
	// DefaultConfigFilename is the default filename for server settings.
	DefaultConfigFilename = "sos-server-settings.yaml"
	// DefaultArchiveFilename is the default JSON-lines archive of terminal alerts.
	DefaultArchiveFilename = "sos-archive.jsonl"
	// DefaultEvidenceChainFilename is the default hash chain file.
	DefaultEvidenceChainFilename = "sos-evidence-chain.jsonl"
	// DefaultEvidenceDir is the default local evidence directory.
	DefaultEvidenceDir = "evidence"

	// DefaultResponseTimeout is how long an alert waits for a response before escalation.
	DefaultResponseTimeout = 30 * time.Second
	// DefaultTrackingInterval is the default continuous tracking period.
	DefaultTrackingInterval = 10 * time.Second
	// DefaultTierTimeout bounds a single location tier.
	DefaultTierTimeout = 3 * time.Second
	// DefaultDispatchTimeout bounds fire-and-forget calls.
	DefaultDispatchTimeout = 15 * time.Second
	// DefaultCallDelay is the pause between emergency calls.
	DefaultCallDelay = 2 * time.Second
	// DefaultTombstones is how many terminated alerts are remembered.
	DefaultTombstones = 4096

	// DefaultOperator is used when no prefix range matches.
	DefaultOperator = "jio"
	// DefaultCircle is used when the circle is unknown.
	DefaultCircle = "delhi"
	// DefaultStaticAccuracy is 50 km, the radius of a telecom circle centroid.
	DefaultStaticAccuracy = 50000
	// DefaultDeviceTTL is how long a device fix stays fresh.
	DefaultDeviceTTL = 2 * time.Minute

	// DefaultUSSDEmergencyCode is the primary emergency USSD code.
	DefaultUSSDEmergencyCode = "*555#"
	// DefaultUSSDServiceCode is the service USSD code.
	DefaultUSSDServiceCode = "112"

	// DefaultRedisStream is the stream receiving lifecycle events.
	DefaultRedisStream = "sos:events"
	// DefaultWearableTopic is subscribed for wearable triggers.
	DefaultWearableTopic = "wearables/+/panic"
	// DefaultCommandTopic receives device commands.
	DefaultCommandTopic = "devices/%s/commands"

	// DefaultHousekeepingSchedule runs the report every minute.
	DefaultHousekeepingSchedule = "@every 1m"
	// DefaultStaleAfter flags alerts active for more than an hour.
	DefaultStaleAfter = time.Hour

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errListenAddressRequired is returned when no listen address is configured.
	errListenAddressRequired = errors.New("at least one of server.grpc_addr or server.http_addr must be provided")
	// errNegativeDuration is returned when a timing is negative.
	errNegativeDuration = errors.New("durations must not be negative")
)

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions, the file holds API keys.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings and fills in defaults.
//
//nolint:cyclop // Flat list of independent checks.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.Server.GRPCAddress == "" && cfg.Server.HTTPAddress == "" {
		return errListenAddressRequired
	}

	for _, addr := range []string{cfg.Server.GRPCAddress, cfg.Server.HTTPAddress} {
		if addr == "" {
			continue
		}

		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("invalid listen address %q: %w", addr, err)
		}
	}

	e := &cfg.Emergency
	if e.ResponseTimeout < 0 || e.TrackingInterval < 0 || e.TierTimeout < 0 ||
		e.DispatchTimeout < 0 || e.CallDelay < 0 || cfg.Location.DeviceTTL < 0 {
		return errNegativeDuration
	}

	for name, carrier := range cfg.Carriers {
		if carrier.BaseURL == "" {
			continue
		}

		if _, err := url.ParseRequestURI(carrier.BaseURL); err != nil {
			return fmt.Errorf("invalid base url for carrier %s: %w", name, err)
		}
	}

	applyDefaults(cfg)

	return nil
}

// applyDefaults fills zero values with the package defaults.
func applyDefaults(cfg *Config) {
	setDuration(&cfg.Emergency.ResponseTimeout, DefaultResponseTimeout)
	setDuration(&cfg.Emergency.TrackingInterval, DefaultTrackingInterval)
	setDuration(&cfg.Emergency.TierTimeout, DefaultTierTimeout)
	setDuration(&cfg.Emergency.DispatchTimeout, DefaultDispatchTimeout)
	setDuration(&cfg.Emergency.CallDelay, DefaultCallDelay)
	setDuration(&cfg.Location.DeviceTTL, DefaultDeviceTTL)
	setDuration(&cfg.Housekeeping.StaleAfter, DefaultStaleAfter)

	if cfg.Emergency.Tombstones <= 0 {
		cfg.Emergency.Tombstones = DefaultTombstones
	}

	setString(&cfg.Location.DefaultOperator, DefaultOperator)
	setString(&cfg.Location.DefaultCircle, DefaultCircle)

	if cfg.Location.StaticAccuracy <= 0 {
		cfg.Location.StaticAccuracy = DefaultStaticAccuracy
	}

	setString(&cfg.USSD.EmergencyCode, DefaultUSSDEmergencyCode)
	setString(&cfg.USSD.ServiceCode, DefaultUSSDServiceCode)
	setString(&cfg.Storage.LocalDir, DefaultEvidenceDir)
	setString(&cfg.Redis.Stream, DefaultRedisStream)
	setString(&cfg.MQTT.WearableTopic, DefaultWearableTopic)
	setString(&cfg.MQTT.CommandTopic, DefaultCommandTopic)
	setString(&cfg.ArchiveFile, DefaultArchiveFilename)
	setString(&cfg.EvidenceChainFile, DefaultEvidenceChainFilename)
	setString(&cfg.Housekeeping.Schedule, DefaultHousekeepingSchedule)
}

func setDuration(target *time.Duration, fallback time.Duration) {
	if *target <= 0 {
		*target = fallback
	}
}

func setString(target *string, fallback string) {
	if *target == "" {
		*target = fallback
	}
}
