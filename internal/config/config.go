package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"alertgateway/internal/domain"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultServiceName       = "alertgateway"
	defaultServiceTitle      = "Alert Gateway"
	defaultNATSURL           = "nats://127.0.0.1:4222"
	defaultPoolSize          = 20
	defaultStreamPrefix      = "ALERTS"
	defaultSubjectPrefix     = "alerts"
	defaultConsumerPrefix    = "alertgateway"
	defaultAckWaitSec        = 30
	defaultMaxAckPending     = 1
	defaultHandleTimeoutSec  = 25
	defaultConnectTimeoutSec = 5
	defaultAPIListen         = ":8080"
	defaultHealthPath        = "/healthz"
	defaultReadyPath         = "/readyz"
	defaultMetricsPath       = "/metrics"
	defaultMaxBodyBytes      = 1 << 20
	defaultNotifyTimeoutSec  = 10
	defaultSMTPPort          = 25
	defaultSMTPTLSPort       = 465
	defaultZoomOAuthEndpoint = "https://zoom.us/oauth/token"
	defaultZoomAPIBase       = "https://api.zoom.us"
)

var (
	queueNamePattern          = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	legacyQueueArrayPattern   = regexp.MustCompile(`(?m)^\s*\[\[\s*(?:queue|queues)\s*\]\]`)
	legacyServiceArrayPattern = regexp.MustCompile(`(?m)^\s*\[\[\s*services\s*\]\]`)
)

// Config holds process settings, broker/channel settings, and static queue/destination records.
// Params: TOML sections from file or merged directory snapshot.
// Returns: validated runtime configuration.
type Config struct {
	Service      ServiceConfig
	Log          LogConfig
	Broker       BrokerConfig
	API          APIConfig
	Notify       NotifyConfig
	SMTP         SMTPConfig
	Zoom         ZoomConfig
	Queues       []QueueConfig
	Destinations []DestinationConfig
}

// rawConfig mirrors TOML model before runtime normalization.
// Params: decoded sections from one TOML source.
// Returns: queue/destination maps keyed by table name.
type rawConfig struct {
	Service     ServiceConfig                `toml:"service"`
	Log         LogConfig                    `toml:"log"`
	Broker      BrokerConfig                 `toml:"broker"`
	API         APIConfig                    `toml:"api"`
	Notify      NotifyConfig                 `toml:"notify"`
	SMTP        SMTPConfig                   `toml:"smtp"`
	Zoom        ZoomConfig                   `toml:"zoom"`
	Queue       map[string]rawQueueConfig    `toml:"queue"`
	Destination map[string]rawDestinationCfg `toml:"destination"`
}

type rawQueueConfig struct {
	ID         int   `toml:"id"`
	ServiceIDs []int `toml:"service_ids"`
}

type rawDestinationCfg struct {
	ID            int    `toml:"id"`
	Type          string `toml:"type"`
	Recipient     string `toml:"recipient"`
	Authorization string `toml:"authorization"`
}

// ServiceConfig contains process-level settings.
// Params: service name plus title/description shown by API and email sender.
// Returns: process identity.
type ServiceConfig struct {
	Name        string `toml:"name"`
	Title       string `toml:"title"`
	Description string `toml:"description"`
}

// BrokerConfig configures JetStream connection pool and queue consumers.
// Params: server URLs, pool size, naming prefixes, and ack/redelivery controls.
// Returns: broker runtime options.
type BrokerConfig struct {
	URL               []string `toml:"url"`
	PoolSize          int      `toml:"pool_size"`
	StreamPrefix      string   `toml:"stream_prefix"`
	SubjectPrefix     string   `toml:"subject_prefix"`
	ConsumerPrefix    string   `toml:"consumer_prefix"`
	AckWaitSec        int      `toml:"ack_wait_sec"`
	MaxAckPending     int      `toml:"max_ack_pending"`
	HandleTimeoutSec  int      `toml:"handle_timeout_sec"`
	ConnectTimeoutSec int      `toml:"connect_timeout_sec"`
}

// APIConfig configures the HTTP front door.
// Params: enable flag, listen address, probe paths, accepted API keys, and body limit.
// Returns: HTTP API behavior.
type APIConfig struct {
	Enabled      bool     `toml:"enabled"`
	Listen       string   `toml:"listen"`
	HealthPath   string   `toml:"health_path"`
	ReadyPath    string   `toml:"ready_path"`
	MetricsPath  string   `toml:"metrics_path"`
	APIKeys      []string `toml:"api_keys"`
	MaxBodyBytes int64    `toml:"max_body_bytes"`
}

// NotifyConfig holds settings shared by webhook senders.
type NotifyConfig struct {
	TimeoutSec int `toml:"timeout_sec"`
}

// SMTPConfig configures the email sender.
// Params: relay address, envelope/display sender, TLS mode, and optional credentials.
// Returns: SMTP transport settings.
type SMTPConfig struct {
	Server      string `toml:"server"`
	Port        int    `toml:"port"`
	FromAddress string `toml:"from_address"`
	FromName    string `toml:"from_name"`
	UseTLS      bool   `toml:"use_tls"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	TimeoutSec  int    `toml:"timeout_sec"`
}

// ZoomConfig configures the Zoom server-to-server OAuth app used for mention lookups.
// Params: account id, client credentials, and endpoint overrides.
// Returns: Zoom credential cache and API settings.
type ZoomConfig struct {
	AccountID     string `toml:"account_id"`
	ClientID      string `toml:"client_id"`
	ClientSecret  string `toml:"client_secret"`
	OAuthEndpoint string `toml:"oauth_endpoint"`
	APIBase       string `toml:"api_base"`
	TimeoutSec    int    `toml:"timeout_sec"`
}

// QueueConfig describes one durable queue from `[queue.<name>]`.
// Params: queue name from table key, numeric id, and destination ids.
// Returns: queue definition.
type QueueConfig struct {
	Name       string
	ID         int
	ServiceIDs []int
}

// DestinationConfig describes one notification destination from `[destination.<name>]`.
// Params: name from table key, id, type, recipient, and optional authorization.
// Returns: destination definition.
type DestinationConfig struct {
	Name          string
	ID            int
	Type          string
	Recipient     string
	Authorization string
}

// LogConfig contains console/file logging sinks.
// Params: sink settings for each output target.
// Returns: logger setup options.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink enable flag, level, format, and path.
// Returns: sink-specific behavior.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// ConfigSource describes file or directory config source.
// Params: exactly one of file path or directory path.
// Returns: normalized source descriptor.
type ConfigSource struct {
	File string
	Dir  string
}

// FromCLI builds normalized source configuration from input paths.
// Params: optional file and directory arguments.
// Returns: source descriptor or validation error.
func FromCLI(filePath, dirPath string) (ConfigSource, error) {
	filePath = strings.TrimSpace(filePath)
	dirPath = strings.TrimSpace(dirPath)

	if filePath == "" && dirPath == "" {
		return ConfigSource{}, errors.New("either --config-file or --config-dir must be provided")
	}
	if filePath != "" && dirPath != "" {
		return ConfigSource{}, errors.New("config source must be either file or dir")
	}

	if filePath != "" {
		return ConfigSource{File: filePath}, nil
	}
	return ConfigSource{Dir: dirPath}, nil
}

// LoadSnapshot loads and validates configuration from one source.
// Params: source selects file or directory mode.
// Returns: validated config or load/validation error.
func LoadSnapshot(src ConfigSource) (Config, error) {
	var cfg Config
	var err error
	if src.File != "" {
		cfg, err = loadFile(src.File)
	} else {
		cfg, err = loadDir(src.Dir)
	}
	if err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// QueueRecords converts queue config into read-only domain records.
// Params: none.
// Returns: queue records in config order.
func (c Config) QueueRecords() []domain.QueueRecord {
	out := make([]domain.QueueRecord, 0, len(c.Queues))
	for _, queue := range c.Queues {
		out = append(out, domain.QueueRecord{
			ID:         queue.ID,
			Name:       queue.Name,
			ServiceIDs: append([]int(nil), queue.ServiceIDs...),
		})
	}
	return out
}

// ServiceRecords converts destination config into tagged domain records.
// Params: none.
// Returns: service records in config order.
func (c Config) ServiceRecords() []domain.ServiceRecord {
	out := make([]domain.ServiceRecord, 0, len(c.Destinations))
	for _, destination := range c.Destinations {
		out = append(out, domain.ServiceRecord{
			ID:        destination.ID,
			Name:      destination.Name,
			Kind:      domain.NewServiceKind(destination.Type, destination.Authorization),
			Recipient: destination.Recipient,
		})
	}
	return out
}

// mergeHints carries explicit bool-presence markers used for directory overlays.
// Params: sparse fields decoded from one TOML fragment.
// Returns: merge behavior hints for zero-value bool overrides.
type mergeHints struct {
	API struct {
		Enabled *bool `toml:"enabled"`
	} `toml:"api"`
	SMTP struct {
		UseTLS *bool `toml:"use_tls"`
	} `toml:"smtp"`
}

// normalizeRawConfig converts raw TOML model to runtime config.
// Params: decoded raw config from one file.
// Returns: normalized config with table keys as queue/destination names.
func normalizeRawConfig(raw rawConfig) (Config, error) {
	cfg := Config{
		Service: raw.Service,
		Log:     raw.Log,
		Broker:  raw.Broker,
		API:     raw.API,
		Notify:  raw.Notify,
		SMTP:    raw.SMTP,
		Zoom:    raw.Zoom,
	}

	queueNames := make([]string, 0, len(raw.Queue))
	for name := range raw.Queue {
		queueNames = append(queueNames, name)
	}
	sort.Strings(queueNames)
	for _, name := range queueNames {
		body := raw.Queue[name]
		cfg.Queues = append(cfg.Queues, QueueConfig{
			Name:       name,
			ID:         body.ID,
			ServiceIDs: append([]int(nil), body.ServiceIDs...),
		})
	}

	destinationNames := make([]string, 0, len(raw.Destination))
	for name := range raw.Destination {
		destinationNames = append(destinationNames, name)
	}
	sort.Strings(destinationNames)
	for _, name := range destinationNames {
		body := raw.Destination[name]
		cfg.Destinations = append(cfg.Destinations, DestinationConfig{
			Name:          name,
			ID:            body.ID,
			Type:          strings.ToLower(strings.TrimSpace(body.Type)),
			Recipient:     strings.TrimSpace(body.Recipient),
			Authorization: body.Authorization,
		})
	}
	return cfg, nil
}

// rejectUnsupportedSyntax checks list-style tables that older deployments used.
// Params: raw TOML file body.
// Returns: error when unsupported syntax is detected.
func rejectUnsupportedSyntax(body []byte) error {
	if legacyQueueArrayPattern.Match(body) {
		return errors.New("[[queue]] arrays are not supported; use [queue.<queue_name>] tables")
	}
	if legacyServiceArrayPattern.Match(body) {
		return errors.New("[[services]] arrays are not supported; use [destination.<name>] tables")
	}
	return nil
}

// decodeFile reads and decodes one TOML file with merge hints.
// Params: file path to config snapshot or fragment.
// Returns: decoded config plus explicit-bool hints.
func decodeFile(path string) (Config, mergeHints, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Config{}, mergeHints{}, fmt.Errorf("read config file %q: %w", path, err)
	}
	if err := rejectUnsupportedSyntax(body); err != nil {
		return Config{}, mergeHints{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	var raw rawConfig
	if err := toml.Unmarshal(body, &raw); err != nil {
		return Config{}, mergeHints{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	cfg, err := normalizeRawConfig(raw)
	if err != nil {
		return Config{}, mergeHints{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	var hints mergeHints
	if err := toml.Unmarshal(body, &hints); err != nil {
		return Config{}, mergeHints{}, fmt.Errorf("decode merge hints %q: %w", path, err)
	}
	return cfg, hints, nil
}

// loadFile reads one TOML configuration file.
// Params: file path to config snapshot.
// Returns: decoded config or read/decode error.
func loadFile(path string) (Config, error) {
	cfg, _, err := decodeFile(path)
	return cfg, err
}

// loadDir reads and merges TOML files from one directory.
// Params: directory containing config fragments.
// Returns: merged config snapshot or load/decode error.
func loadDir(dir string) (Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Config{}, fmt.Errorf("read config dir %q: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.ToLower(filepath.Ext(entry.Name())) != ".toml" {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	if len(files) == 0 {
		return Config{}, fmt.Errorf("no .toml files found in %q", dir)
	}
	sort.Strings(files)

	var merged Config
	for _, file := range files {
		fragment, hints, err := decodeFile(file)
		if err != nil {
			return Config{}, err
		}
		mergeConfig(&merged, fragment, hints)
	}
	return merged, nil
}

// mergeConfig overlays source fragment onto destination.
// Params: destination config, next fragment, and explicit-bool hints.
// Returns: merged configuration side-effect in dst.
func mergeConfig(dst *Config, src Config, hints mergeHints) {
	if src.Service != (ServiceConfig{}) {
		dst.Service = src.Service
	}
	if src.Log != (LogConfig{}) {
		dst.Log = src.Log
	}
	if hasBrokerConfig(src.Broker) {
		dst.Broker = src.Broker
	}
	mergeAPIConfig(&dst.API, src.API, hints.API.Enabled)
	if src.Notify != (NotifyConfig{}) {
		dst.Notify = src.Notify
	}
	if src.SMTP != (SMTPConfig{}) || hints.SMTP.UseTLS != nil {
		useTLS := dst.SMTP.UseTLS
		dst.SMTP = src.SMTP
		dst.SMTP.UseTLS = useTLS
		applyBoolMerge(&dst.SMTP.UseTLS, src.SMTP.UseTLS, hints.SMTP.UseTLS)
	}
	if src.Zoom != (ZoomConfig{}) {
		dst.Zoom = src.Zoom
	}
	dst.Queues = append(dst.Queues, src.Queues...)
	dst.Destinations = append(dst.Destinations, src.Destinations...)
}

// mergeAPIConfig overlays API fragment preserving keys from earlier fragments.
// Params: destination API config, fragment, and explicit enabled marker.
// Returns: merged API config side-effect in dst.
func mergeAPIConfig(dst *APIConfig, src APIConfig, enabled *bool) {
	applyBoolMerge(&dst.Enabled, src.Enabled, enabled)
	if strings.TrimSpace(src.Listen) != "" {
		dst.Listen = src.Listen
	}
	if strings.TrimSpace(src.HealthPath) != "" {
		dst.HealthPath = src.HealthPath
	}
	if strings.TrimSpace(src.ReadyPath) != "" {
		dst.ReadyPath = src.ReadyPath
	}
	if strings.TrimSpace(src.MetricsPath) != "" {
		dst.MetricsPath = src.MetricsPath
	}
	if src.MaxBodyBytes != 0 {
		dst.MaxBodyBytes = src.MaxBodyBytes
	}
	dst.APIKeys = append(dst.APIKeys, src.APIKeys...)
}

// applyBoolMerge writes bool only when fragment set it explicitly (or set it true).
// Params: destination pointer, decoded value, and explicit marker.
// Returns: destination updated in place.
func applyBoolMerge(dst *bool, value bool, explicit *bool) {
	if explicit != nil {
		*dst = *explicit
		return
	}
	if value {
		*dst = true
	}
}

func hasBrokerConfig(cfg BrokerConfig) bool {
	return len(cfg.URL) > 0 ||
		cfg.PoolSize != 0 ||
		cfg.StreamPrefix != "" ||
		cfg.SubjectPrefix != "" ||
		cfg.ConsumerPrefix != "" ||
		cfg.AckWaitSec != 0 ||
		cfg.MaxAckPending != 0 ||
		cfg.HandleTimeoutSec != 0 ||
		cfg.ConnectTimeoutSec != 0
}

// applyDefaults fills omitted settings.
// Params: config pointer decoded from source.
// Returns: defaults applied in place.
func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Service.Name) == "" {
		cfg.Service.Name = defaultServiceName
	}
	if strings.TrimSpace(cfg.Service.Title) == "" {
		cfg.Service.Title = defaultServiceTitle
	}

	if cfg.Log.Console.Level == "" {
		cfg.Log.Console.Level = "info"
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = "line"
	}
	if cfg.Log.File.Level == "" {
		cfg.Log.File.Level = "info"
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = "json"
	}
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}

	cfg.Broker.URL = normalizeNATSURLs(cfg.Broker.URL)
	if len(cfg.Broker.URL) == 0 {
		cfg.Broker.URL = []string{defaultNATSURL}
	}
	if cfg.Broker.PoolSize == 0 {
		cfg.Broker.PoolSize = defaultPoolSize
	}
	if strings.TrimSpace(cfg.Broker.StreamPrefix) == "" {
		cfg.Broker.StreamPrefix = defaultStreamPrefix
	}
	if strings.TrimSpace(cfg.Broker.SubjectPrefix) == "" {
		cfg.Broker.SubjectPrefix = defaultSubjectPrefix
	}
	if strings.TrimSpace(cfg.Broker.ConsumerPrefix) == "" {
		cfg.Broker.ConsumerPrefix = defaultConsumerPrefix
	}
	if cfg.Broker.AckWaitSec == 0 {
		cfg.Broker.AckWaitSec = defaultAckWaitSec
	}
	if cfg.Broker.MaxAckPending == 0 {
		cfg.Broker.MaxAckPending = defaultMaxAckPending
	}
	if cfg.Broker.HandleTimeoutSec == 0 {
		cfg.Broker.HandleTimeoutSec = defaultHandleTimeoutSec
		if cfg.Broker.AckWaitSec > 1 && cfg.Broker.HandleTimeoutSec >= cfg.Broker.AckWaitSec {
			cfg.Broker.HandleTimeoutSec = cfg.Broker.AckWaitSec - 1
		}
	}
	if cfg.Broker.ConnectTimeoutSec == 0 {
		cfg.Broker.ConnectTimeoutSec = defaultConnectTimeoutSec
	}

	if strings.TrimSpace(cfg.API.Listen) == "" {
		cfg.API.Listen = defaultAPIListen
	}
	if strings.TrimSpace(cfg.API.HealthPath) == "" {
		cfg.API.HealthPath = defaultHealthPath
	}
	if strings.TrimSpace(cfg.API.ReadyPath) == "" {
		cfg.API.ReadyPath = defaultReadyPath
	}
	if strings.TrimSpace(cfg.API.MetricsPath) == "" {
		cfg.API.MetricsPath = defaultMetricsPath
	}
	if cfg.API.MaxBodyBytes <= 0 {
		cfg.API.MaxBodyBytes = defaultMaxBodyBytes
	}

	if cfg.Notify.TimeoutSec <= 0 {
		cfg.Notify.TimeoutSec = defaultNotifyTimeoutSec
	}

	if cfg.SMTP.Port == 0 {
		if cfg.SMTP.UseTLS {
			cfg.SMTP.Port = defaultSMTPTLSPort
		} else {
			cfg.SMTP.Port = defaultSMTPPort
		}
	}
	if strings.TrimSpace(cfg.SMTP.FromName) == "" {
		cfg.SMTP.FromName = cfg.Service.Title
	}
	if cfg.SMTP.TimeoutSec <= 0 {
		cfg.SMTP.TimeoutSec = cfg.Notify.TimeoutSec
	}

	if strings.TrimSpace(cfg.Zoom.OAuthEndpoint) == "" {
		cfg.Zoom.OAuthEndpoint = defaultZoomOAuthEndpoint
	}
	if strings.TrimSpace(cfg.Zoom.APIBase) == "" {
		cfg.Zoom.APIBase = defaultZoomAPIBase
	}
	if cfg.Zoom.TimeoutSec <= 0 {
		cfg.Zoom.TimeoutSec = cfg.Notify.TimeoutSec
	}
}

// validateConfig validates full runtime configuration.
// Params: cfg snapshot to validate.
// Returns: first validation error.
func validateConfig(cfg Config) error {
	if err := validateLogSink("log.console", cfg.Log.Console, false); err != nil {
		return err
	}
	if err := validateLogSink("log.file", cfg.Log.File, true); err != nil {
		return err
	}

	for i, url := range cfg.Broker.URL {
		if url == "" {
			return fmt.Errorf("broker.url[%d] is empty", i)
		}
	}
	if cfg.Broker.PoolSize <= 0 {
		return errors.New("broker.pool_size must be >0")
	}
	if cfg.Broker.AckWaitSec <= 0 {
		return errors.New("broker.ack_wait_sec must be >0")
	}
	if cfg.Broker.MaxAckPending <= 0 {
		return errors.New("broker.max_ack_pending must be >0")
	}
	if cfg.Broker.HandleTimeoutSec <= 0 {
		return errors.New("broker.handle_timeout_sec must be >0")
	}
	// A message still being handled past ack_wait is redelivered and sent twice.
	if cfg.Broker.HandleTimeoutSec >= cfg.Broker.AckWaitSec {
		return fmt.Errorf("broker.handle_timeout_sec (%d) must be less than broker.ack_wait_sec (%d)",
			cfg.Broker.HandleTimeoutSec, cfg.Broker.AckWaitSec)
	}
	if cfg.Broker.ConnectTimeoutSec <= 0 {
		return errors.New("broker.connect_timeout_sec must be >0")
	}
	if !queueNamePattern.MatchString(cfg.Broker.StreamPrefix) {
		return fmt.Errorf("broker.stream_prefix has unsupported value %q", cfg.Broker.StreamPrefix)
	}
	if strings.ContainsAny(cfg.Broker.SubjectPrefix, " *>") {
		return fmt.Errorf("broker.subject_prefix has unsupported value %q", cfg.Broker.SubjectPrefix)
	}
	if !queueNamePattern.MatchString(cfg.Broker.ConsumerPrefix) {
		return fmt.Errorf("broker.consumer_prefix has unsupported value %q", cfg.Broker.ConsumerPrefix)
	}

	if cfg.API.Enabled {
		if len(cfg.API.APIKeys) == 0 {
			return errors.New("api.api_keys must not be empty when api.enabled=true")
		}
		for i, key := range cfg.API.APIKeys {
			if strings.TrimSpace(key) == "" {
				return fmt.Errorf("api.api_keys[%d] is empty", i)
			}
		}
	}

	destinationIDs := make(map[int]DestinationConfig, len(cfg.Destinations))
	hasSMTP := false
	for _, destination := range cfg.Destinations {
		path := "destination." + destination.Name
		if _, exists := destinationIDs[destination.ID]; exists {
			return fmt.Errorf("%s: duplicate destination id %d", path, destination.ID)
		}
		destinationIDs[destination.ID] = destination
		if !domain.IsSupportedServiceType(destination.Type) {
			return fmt.Errorf("%s.type has unsupported value %q", path, destination.Type)
		}
		if destination.Recipient == "" {
			return fmt.Errorf("%s.recipient is required", path)
		}
		switch kind := domain.NewServiceKind(destination.Type, destination.Authorization).(type) {
		case domain.ZoomKind:
			if strings.TrimSpace(kind.Authorization) == "" {
				return fmt.Errorf("%s.authorization is required for type=zoom", path)
			}
		case domain.SMTPKind:
			hasSMTP = true
		}
	}
	if hasSMTP {
		if strings.TrimSpace(cfg.SMTP.Server) == "" {
			return errors.New("smtp.server is required when smtp destinations are configured")
		}
		if strings.TrimSpace(cfg.SMTP.FromAddress) == "" {
			return errors.New("smtp.from_address is required when smtp destinations are configured")
		}
	}
	if cfg.SMTP.Port <= 0 || cfg.SMTP.Port > 65535 {
		return fmt.Errorf("smtp.port has unsupported value %d", cfg.SMTP.Port)
	}

	if len(cfg.Queues) == 0 {
		return errors.New("at least one queue is required")
	}
	queueIDs := make(map[int]string, len(cfg.Queues))
	queueNames := make(map[string]string, len(cfg.Queues))
	for _, queue := range cfg.Queues {
		path := "queue." + queue.Name
		if !queueNamePattern.MatchString(queue.Name) {
			return fmt.Errorf("%s: queue name must match %s", path, queueNamePattern.String())
		}
		// Stream names are upper-cased, so names differing only in case share one stream.
		folded := strings.ToLower(queue.Name)
		if other, exists := queueNames[folded]; exists {
			if other == queue.Name {
				return fmt.Errorf("duplicate queue name %q", queue.Name)
			}
			return fmt.Errorf("%s: queue name collides with %q (names are case-insensitive)", path, other)
		}
		queueNames[folded] = queue.Name
		if other, exists := queueIDs[queue.ID]; exists {
			return fmt.Errorf("%s: queue id %d already used by %q", path, queue.ID, other)
		}
		queueIDs[queue.ID] = queue.Name
		for i, serviceID := range queue.ServiceIDs {
			if _, ok := destinationIDs[serviceID]; !ok {
				return fmt.Errorf("%s.service_ids[%d]: unknown destination id %d", path, i, serviceID)
			}
		}
	}
	return nil
}

// normalizeNATSURLs trims spaces around each configured NATS URL.
// Params: raw URL list from config.
// Returns: normalized URL list preserving element count for validation.
func normalizeNATSURLs(urls []string) []string {
	if len(urls) == 0 {
		return nil
	}
	out := make([]string, len(urls))
	for i := range urls {
		out[i] = strings.TrimSpace(urls[i])
	}
	return out
}

// validateLogSink validates one log sink configuration.
// Params: sink name, sink values, and whether path is required.
// Returns: sink validation error.
func validateLogSink(name string, sink LogSinkConfig, requirePath bool) error {
	if !sink.Enabled {
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(sink.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%s.level has unsupported value %q", name, sink.Level)
	}

	switch strings.ToLower(strings.TrimSpace(sink.Format)) {
	case "line", "json":
	default:
		return fmt.Errorf("%s.format has unsupported value %q", name, sink.Format)
	}

	if requirePath && strings.TrimSpace(sink.Path) == "" {
		return fmt.Errorf("%s.path is required", name)
	}

	return nil
}
