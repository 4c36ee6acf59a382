package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// EnvVar selects the configuration file loaded by LoadConfig.
const EnvVar = "CRYSTALSTREAM_ENV"

const (
	CutPointLastAcknowledged = "lastAcknowledged"
	CutPointLastDelivered    = "lastDelivered"
)

type Config struct {
	Environment string         `yaml:"environment"`
	Store       StoreConfig    `yaml:"store"`
	Streams     StreamsConfig  `yaml:"streams"`
	Consumer    ConsumerConfig `yaml:"consumer"`
	Queue       QueueConfig    `yaml:"queue"`
	Server      ServerConfig   `yaml:"server"`
	Storage     StorageConfig  `yaml:"storage"`
	Metrics     MetricsConfig  `yaml:"metrics"`
	Logging     LoggingConfig  `yaml:"logging"`
}

// StoreConfig is the client side connection to the stream store.
type StoreConfig struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
}

type StreamsConfig struct {
	Prefix string `yaml:"prefix"`
	ID     string `yaml:"id"`
}

type ConsumerConfig struct {
	Stream   string         `yaml:"stream"`
	Group    string         `yaml:"group"`
	Name     string         `yaml:"name"`
	Read     ReadConfig     `yaml:"read"`
	Recovery RecoveryConfig `yaml:"recovery"`
	Trim     TrimConfig     `yaml:"trim"`
}

type ReadConfig struct {
	Count        int64         `yaml:"count"`
	Block        time.Duration `yaml:"block"`
	BlockForever bool          `yaml:"block_forever"`
}

type RecoveryConfig struct {
	Start     string        `yaml:"start"`
	End       string        `yaml:"end"`
	PageCount int64         `yaml:"page_count"`
	MinIdle   time.Duration `yaml:"min_idle"`
}

type TrimConfig struct {
	Enabled   bool   `yaml:"enabled"`
	MaxLength int64  `yaml:"max_length"`
	CutPoint  string `yaml:"cut_point"`
	PageCount int64  `yaml:"page_count"`
}

type QueueConfig struct {
	Name string `yaml:"name"`
}

// ServerConfig configures the reference store.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Password       string        `yaml:"password"`
	MaxConnections int           `yaml:"max_connections"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

type StorageConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string     `yaml:"level"`
	Format string     `yaml:"format"`
	Output string     `yaml:"output"`
	File   FileConfig `yaml:"file"`
}

// FileConfig drives log rotation. MaxSize is in megabytes, MaxAge in days.
type FileConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxAge     int    `yaml:"max_age"`
	MaxBackups int    `yaml:"max_backups"`
	Compress   bool   `yaml:"compress"`
}

// Env returns the environment named by CRYSTALSTREAM_ENV, or "development".
func Env() string {
	if env := os.Getenv(EnvVar); env != "" {
		return env
	}
	return "development"
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Store.Addr == "" {
		c.Store.Addr = "127.0.0.1:6380"
	}
	if c.Store.DialTimeout == 0 {
		c.Store.DialTimeout = 5 * time.Second
	}
	// Blocking reads hold the connection for the whole BLOCK window.
	if c.Store.ReadTimeout == 0 {
		c.Store.ReadTimeout = -1
	}
	if c.Store.WriteTimeout == 0 {
		c.Store.WriteTimeout = 3 * time.Second
	}
	if c.Store.PoolSize == 0 {
		c.Store.PoolSize = 10
	}

	if c.Consumer.Read.Count == 0 {
		c.Consumer.Read.Count = 10
	}
	if c.Consumer.Read.Block == 0 {
		c.Consumer.Read.Block = 5 * time.Second
	}
	if c.Consumer.Recovery.Start == "" {
		c.Consumer.Recovery.Start = "-"
	}
	if c.Consumer.Recovery.End == "" {
		c.Consumer.Recovery.End = "+"
	}
	if c.Consumer.Recovery.PageCount == 0 {
		c.Consumer.Recovery.PageCount = 100
	}
	if c.Consumer.Trim.CutPoint == "" {
		c.Consumer.Trim.CutPoint = CutPointLastAcknowledged
	}
	if c.Consumer.Trim.PageCount == 0 {
		c.Consumer.Trim.PageCount = 100
	}

	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 6380
	}
	if c.Server.MaxConnections == 0 {
		c.Server.MaxConnections = 1000
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/crystalstream.aof"
	}

	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9100
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
	if c.Logging.File.MaxSize == 0 {
		c.Logging.File.MaxSize = 100
	}
}

// Validate reports settings the consumer runtime cannot work with.
func (c *Config) Validate() error {
	switch c.Consumer.Trim.CutPoint {
	case CutPointLastAcknowledged, CutPointLastDelivered:
	default:
		return fmt.Errorf("consumer.trim.cut_point: unknown cut point %q", c.Consumer.Trim.CutPoint)
	}
	if c.Consumer.Recovery.PageCount < 0 || c.Consumer.Trim.PageCount < 0 {
		return errors.New("page_count must not be negative")
	}
	if c.Consumer.Trim.Enabled && c.Consumer.Trim.MaxLength <= 0 {
		return errors.New("consumer.trim.max_length must be positive when trimming is enabled")
	}
	return nil
}

// RedisOptions builds the go-redis options for the store connection. The
// store speaks RESP2 only, so the client never attempts HELLO 3 or CLIENT
// SETINFO.
func (c *Config) RedisOptions() *redis.Options {
	return &redis.Options{
		Addr:            c.Store.Addr,
		Username:        c.Store.Username,
		Password:        c.Store.Password,
		DB:              c.Store.DB,
		DialTimeout:     c.Store.DialTimeout,
		ReadTimeout:     c.Store.ReadTimeout,
		WriteTimeout:    c.Store.WriteTimeout,
		PoolSize:        c.Store.PoolSize,
		Protocol:        2,
		DisableIdentity: true,
	}
}

// Address is the listen address of the reference store.
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Parse decodes a YAML document and applies defaults.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Load reads the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return Parse(data)
}

// findConfigFile walks up from the working directory until it finds
// config/<env>.yaml (or .yml).
func findConfigFile(env string) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		for _, ext := range []string{"yaml", "yml"} {
			candidate := filepath.Join(dir, "config", fmt.Sprintf("%s.%s", env, ext))
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("could not find config/%s.yaml in any parent directory", env)
		}
		dir = parent
	}
}

func LoadConfig(env string) (*Config, error) {
	path, err := findConfigFile(env)
	if err != nil {
		return nil, err
	}

	config, err := Load(path)
	if err != nil {
		return nil, err
	}
	config.Environment = env
	return config, nil
}
