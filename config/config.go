package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var ErrMissingValue = errors.New("required config value is missing")

const (
	defaultRPCTimeout       = 30 * time.Second
	defaultChunkSize        = 100
	defaultStartupDelay     = time.Second
	defaultChunkInterval    = 500 * time.Millisecond
	defaultRetryInterval    = 10 * time.Second
	defaultQueueName        = "event-processing-queue"
	defaultQueueWorkers     = 4
	defaultQueueMaxAttempts = 5
	defaultQueueBackoff     = 5 * time.Second
	defaultQueueLease       = time.Minute
	defaultQueuePoll        = time.Second
	defaultMetricsHost      = ":2112"
)

type RPCConfig struct {
	Host    string        `yaml:"host"`
	Timeout time.Duration `yaml:"timeout"`
	RPS     float64       `yaml:"rps"`
}

type ChainConfig struct {
	RPC             *RPCConfig `yaml:"rpc"`
	WS              *RPCConfig `yaml:"ws"`
	ChainID         string     `yaml:"chain_id"`
	SafeLogsRequest bool       `yaml:"safe_logs_request"`
}

type ContractConfig struct {
	Address            common.Address `yaml:"address"`
	StartBlock         uint           `yaml:"start_block"`
	BlockConfirmations uint           `yaml:"block_confirmations"`
}

type ScannerConfig struct {
	ChunkSize     uint          `yaml:"chunk_size"`
	StartupDelay  time.Duration `yaml:"startup_delay"`
	ChunkInterval time.Duration `yaml:"chunk_interval"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

type QueueConfig struct {
	URL          string        `yaml:"url"`
	Name         string        `yaml:"name"`
	Workers      int           `yaml:"workers"`
	MaxAttempts  int           `yaml:"max_attempts"`
	Backoff      time.Duration `yaml:"backoff"`
	LeaseTimeout time.Duration `yaml:"lease_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type DBConfig struct {
	URL      string `yaml:"url"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       string `yaml:"database"`
}

type PresenterConfig struct {
	Host string `yaml:"host"`
}

type MetricsConfig struct {
	Host string `yaml:"host"`
}

type Config struct {
	Chain     *ChainConfig     `yaml:"chain"`
	Contract  *ContractConfig  `yaml:"contract"`
	Scanner   *ScannerConfig   `yaml:"scanner"`
	Queue     *QueueConfig     `yaml:"queue"`
	DBConfig  *DBConfig        `yaml:"postgres"`
	LogLevel  logrus.Level     `yaml:"log_level"`
	Presenter *PresenterConfig `yaml:"presenter"`
	Metrics   *MetricsConfig   `yaml:"metrics"`
}

// readYamlConfig decodes a strict YAML document, unknown keys are rejected.
func readYamlConfig(blob []byte) (*Config, error) {
	cfg := new(Config)
	dec := yaml.NewDecoder(bytes.NewReader(blob))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("can't parse yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ReadConfig(blob []byte) (*Config, error) {
	return readYamlConfig(blob)
}

func ReadConfigWithEnv(blob []byte) (*Config, error) {
	return readYamlConfig([]byte(os.ExpandEnv(string(blob))))
}

func ReadConfigFromFile(path string) (*Config, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't read config file: %w", err)
	}
	return ReadConfigWithEnv(blob)
}

func (cfg *Config) applyDefaults() {
	if cfg.Chain == nil {
		cfg.Chain = new(ChainConfig)
	}
	for _, rpc := range []*RPCConfig{cfg.Chain.RPC, cfg.Chain.WS} {
		if rpc != nil && rpc.Timeout == 0 {
			rpc.Timeout = defaultRPCTimeout
		}
	}
	if cfg.Contract == nil {
		cfg.Contract = new(ContractConfig)
	}
	if cfg.Scanner == nil {
		cfg.Scanner = new(ScannerConfig)
	}
	if cfg.Scanner.ChunkSize == 0 {
		cfg.Scanner.ChunkSize = defaultChunkSize
	}
	if cfg.Scanner.StartupDelay == 0 {
		cfg.Scanner.StartupDelay = defaultStartupDelay
	}
	if cfg.Scanner.ChunkInterval == 0 {
		cfg.Scanner.ChunkInterval = defaultChunkInterval
	}
	if cfg.Scanner.RetryInterval == 0 {
		cfg.Scanner.RetryInterval = defaultRetryInterval
	}
	if cfg.Queue == nil {
		cfg.Queue = new(QueueConfig)
	}
	if cfg.Queue.Name == "" {
		cfg.Queue.Name = defaultQueueName
	}
	if cfg.Queue.Workers == 0 {
		cfg.Queue.Workers = defaultQueueWorkers
	}
	if cfg.Queue.MaxAttempts == 0 {
		cfg.Queue.MaxAttempts = defaultQueueMaxAttempts
	}
	if cfg.Queue.Backoff == 0 {
		cfg.Queue.Backoff = defaultQueueBackoff
	}
	if cfg.Queue.LeaseTimeout == 0 {
		cfg.Queue.LeaseTimeout = defaultQueueLease
	}
	if cfg.Queue.PollInterval == 0 {
		cfg.Queue.PollInterval = defaultQueuePoll
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &MetricsConfig{Host: defaultMetricsHost}
	}
	if cfg.LogLevel == logrus.PanicLevel {
		cfg.LogLevel = logrus.InfoLevel
	}
}

func (cfg *Config) validate() error {
	if cfg.Chain.RPC == nil || cfg.Chain.RPC.Host == "" {
		return fmt.Errorf("chain.rpc.host: %w", ErrMissingValue)
	}
	if cfg.Chain.WS == nil || cfg.Chain.WS.Host == "" {
		return fmt.Errorf("chain.ws.host: %w", ErrMissingValue)
	}
	if cfg.Chain.ChainID == "" {
		return fmt.Errorf("chain.chain_id: %w", ErrMissingValue)
	}
	if cfg.Contract.Address == (common.Address{}) {
		return fmt.Errorf("contract.address: %w", ErrMissingValue)
	}
	if cfg.Queue.URL == "" {
		return fmt.Errorf("queue.url: %w", ErrMissingValue)
	}
	if cfg.DBConfig == nil || (cfg.DBConfig.URL == "" && cfg.DBConfig.Host == "") {
		return fmt.Errorf("postgres: %w", ErrMissingValue)
	}
	return nil
}
