package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"autoenroll/internal/model"
)

type Config struct {
	LogLevel   string           `json:"log_level" yaml:"log_level"`
	Ingest     IngestConfig     `json:"ingest" yaml:"ingest"`
	Pipeline   PipelineConfig   `json:"pipeline" yaml:"pipeline"`
	Enrollment EnrollmentConfig `json:"enrollment" yaml:"enrollment"`
	Streams    StreamsConfig    `json:"streams" yaml:"streams"`
	API        APIConfig        `json:"api" yaml:"api"`
	Storage    StorageConfig    `json:"storage" yaml:"storage"`
	Stats      StatsConfig      `json:"stats" yaml:"stats"`
	History    HistoryConfig    `json:"history" yaml:"history"`
}

type IngestConfig struct {
	ChannelBuffer int         `json:"channel_buffer" yaml:"channel_buffer"`
	REST          RESTConfig  `json:"rest" yaml:"rest"`
	Kafka         KafkaConfig `json:"kafka" yaml:"kafka"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type PipelineConfig struct {
	MaxParallelBlocks   int           `json:"max_parallel_blocks" yaml:"max_parallel_blocks"`
	TrackletTimeout     time.Duration `json:"tracklet_timeout" yaml:"tracklet_timeout"`
	SweepInterval       time.Duration `json:"sweep_interval" yaml:"sweep_interval"`
	HardCacheExpiration time.Duration `json:"hard_cache_expiration" yaml:"hard_cache_expiration"`
	ShutdownGrace       time.Duration `json:"shutdown_grace" yaml:"shutdown_grace"`
	DebugOutputFolder   string        `json:"debug_output_folder" yaml:"debug_output_folder"`
}

type EnrollmentConfig struct {
	TargetURL                string        `json:"target_url" yaml:"target_url"`
	RequestTimeout           time.Duration `json:"request_timeout" yaml:"request_timeout"`
	DuplicateSearchThreshold int           `json:"duplicate_search_threshold" yaml:"duplicate_search_threshold"`
	RegisterMaxFaces         int           `json:"register_max_faces" yaml:"register_max_faces"`
	RegisterMinFaceSize      int           `json:"register_min_face_size" yaml:"register_min_face_size"`
	RegisterMaxFaceSize      int           `json:"register_max_face_size" yaml:"register_max_face_size"`
	RegisterFaceConfidence   int           `json:"register_face_confidence" yaml:"register_face_confidence"`
	WatchlistIDs             []string      `json:"watchlist_ids" yaml:"watchlist_ids"`
}

type StreamsConfig struct {
	ApplyForAllStreams bool                        `json:"apply_for_all_streams" yaml:"apply_for_all_streams"`
	Conditions         model.StreamConfiguration   `json:"conditions" yaml:"conditions"`
	Overrides          []model.StreamConfiguration `json:"overrides" yaml:"overrides"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type StatsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

type HistoryConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Ingest: IngestConfig{
			ChannelBuffer: 10000,
			REST:          RESTConfig{Enabled: true, Addr: ":8080"},
			Kafka:         KafkaConfig{Enabled: false},
		},
		Pipeline: PipelineConfig{
			MaxParallelBlocks:   4,
			TrackletTimeout:     5 * time.Second,
			SweepInterval:       1 * time.Second,
			HardCacheExpiration: 10 * time.Second,
			ShutdownGrace:       5 * time.Second,
		},
		Enrollment: EnrollmentConfig{
			TargetURL:              "http://localhost:8098",
			RequestTimeout:         10 * time.Second,
			RegisterMaxFaces:       3,
			RegisterMinFaceSize:    30,
			RegisterMaxFaceSize:    600,
			RegisterFaceConfidence: 450,
		},
		Streams: StreamsConfig{
			ApplyForAllStreams: false,
		},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:autoenroll.db?_pragma=busy_timeout(5000)"},
		Stats:   StatsConfig{StoreLimit: 5000},
		History: HistoryConfig{StoreLimit: 1000},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 10000
	}
	if cfg.Pipeline.MaxParallelBlocks <= 0 {
		cfg.Pipeline.MaxParallelBlocks = 4
	}
	if cfg.Pipeline.TrackletTimeout <= 0 {
		cfg.Pipeline.TrackletTimeout = 5 * time.Second
	}
	if cfg.Pipeline.SweepInterval <= 0 {
		cfg.Pipeline.SweepInterval = 1 * time.Second
	}
	if cfg.Pipeline.HardCacheExpiration <= 0 {
		cfg.Pipeline.HardCacheExpiration = 10 * time.Second
	}
	if cfg.Pipeline.ShutdownGrace <= 0 {
		cfg.Pipeline.ShutdownGrace = 5 * time.Second
	}
	if cfg.Enrollment.RequestTimeout <= 0 {
		cfg.Enrollment.RequestTimeout = 10 * time.Second
	}
	if cfg.Enrollment.RegisterMaxFaces <= 0 {
		cfg.Enrollment.RegisterMaxFaces = 3
	}
	if cfg.Enrollment.RegisterMinFaceSize <= 0 {
		cfg.Enrollment.RegisterMinFaceSize = 30
	}
	if cfg.Enrollment.RegisterMaxFaceSize <= 0 {
		cfg.Enrollment.RegisterMaxFaceSize = 600
	}
	if cfg.Enrollment.RegisterFaceConfidence <= 0 {
		cfg.Enrollment.RegisterFaceConfidence = 450
	}
	if cfg.Stats.StoreLimit <= 0 {
		cfg.Stats.StoreLimit = 5000
	}
	if cfg.History.StoreLimit <= 0 {
		cfg.History.StoreLimit = 1000
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Enrollment.TargetURL == "" {
		return errors.New("enrollment.target_url is required")
	}
	if cfg.Enrollment.DuplicateSearchThreshold < 0 {
		return errors.New("enrollment.duplicate_search_threshold must not be negative")
	}
	for i, sc := range cfg.Streams.Overrides {
		if _, err := uuid.Parse(sc.StreamID); err != nil {
			return fmt.Errorf("streams.overrides[%d].stream_id is not a valid GUID: %q", i, sc.StreamID)
		}
	}
	if cfg.Storage.Enabled {
		driver := strings.ToLower(cfg.Storage.Driver)
		if driver != "sqlite" && driver != "postgres" && driver != "postgresql" {
			return fmt.Errorf("storage.driver must be sqlite or postgres, got %q", cfg.Storage.Driver)
		}
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// NewStaticManager wraps an in-memory config that is never reloaded from
// disk. Used by tests and by callers that assemble configuration themselves.
func NewStaticManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	applyDefaults(cfg)
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return m.Get(), nil
	}
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
