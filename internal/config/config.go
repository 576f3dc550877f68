package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// Source locations: http(s) URLs or local file paths.
	InternetSource    string
	GDPSource         string
	ElectricitySource string
	GeoJSONSource     string

	// Parsing.
	HeaderScanLines       int
	UnitSampleSize        int
	UnitFractionThreshold float64

	// Loading.
	LoadConcurrency int
	FetchTimeout    time.Duration
	FetchCacheSize  int
	RefreshInterval time.Duration

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	KafkaEnabled   bool
	KafkaBrokers   []string
	KafkaSinkTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	headerScanLines, err := parsePositiveInt("HEADER_SCAN_LINES", 20)
	if err != nil {
		return nil, err
	}
	unitSampleSize, err := parsePositiveInt("UNIT_SAMPLE_SIZE", 400)
	if err != nil {
		return nil, err
	}
	loadConcurrency, err := parsePositiveInt("LOAD_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}
	fetchCacheSize, err := parsePositiveInt("FETCH_CACHE_SIZE", 32)
	if err != nil {
		return nil, err
	}

	threshold, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("UNIT_FRACTION_THRESHOLD", "0.6"), 64)
	if err != nil || threshold < 0 || threshold >= 1 {
		return nil, errors.New("invalid UNIT_FRACTION_THRESHOLD: must be in [0, 1)")
	}

	fetchTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("FETCH_TIMEOUT", "10s"))
	if err != nil || fetchTimeout <= 0 {
		return nil, errors.New("invalid FETCH_TIMEOUT")
	}

	refreshInterval, err := time.ParseDuration(sharedcfg.EnvOrDefault("REFRESH_INTERVAL", "0s"))
	if err != nil || refreshInterval < 0 {
		return nil, errors.New("invalid REFRESH_INTERVAL")
	}

	kafkaEnabled, err := strconv.ParseBool(sharedcfg.EnvOrDefault("KAFKA_ENABLED", "false"))
	if err != nil {
		return nil, errors.New("invalid KAFKA_ENABLED")
	}

	cfg := &Config{
		InternetSource:    sharedcfg.EnvOrDefault("INTERNET_SOURCE", "data/share-of-individuals-using-the-internet.csv"),
		GDPSource:         sharedcfg.EnvOrDefault("GDP_SOURCE", "data/API_NY.GDP.PCAP.CD_DS2_en_csv_v2_24794.csv"),
		ElectricitySource: sharedcfg.EnvOrDefault("ELECTRICITY_SOURCE", "data/API_EG.ELC.ACCS.ZS_DS2_en_csv_v2_568.csv"),
		GeoJSONSource:     sharedcfg.EnvOrDefault("GEOJSON_SOURCE", "data/countries.geojson"),

		HeaderScanLines:       headerScanLines,
		UnitSampleSize:        unitSampleSize,
		UnitFractionThreshold: threshold,

		LoadConcurrency: loadConcurrency,
		FetchTimeout:    fetchTimeout,
		FetchCacheSize:  fetchCacheSize,
		RefreshInterval: refreshInterval,

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaEnabled:   kafkaEnabled,
		KafkaBrokers:   sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic: sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "indicator-summaries"),
	}

	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}

	return cfg, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := sharedcfg.EnvOrDefault(key, strconv.Itoa(def))
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}
