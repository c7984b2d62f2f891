package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-yaml/yaml"

	"github.com/totegamma/community-server/internal/domain"
)

const (
	RecordStoreFilesystem = "filesystem"
	RecordStorePostgres   = "postgres"
)

type Config struct {
	Server    Server    `yaml:"server"`
	Community Community `yaml:"community"`
}

type Server struct {
	Listen         string   `yaml:"listen"`
	DataDir        string   `yaml:"dataDir"`
	RecordStore    string   `yaml:"recordStore"` // filesystem, postgres
	PostgresDsn    string   `yaml:"postgresDsn"`
	RedisAddr      string   `yaml:"redisAddr"`
	RedisPassword  string   `yaml:"redisPassword"`
	RedisDB        int      `yaml:"redisDB"`
	MemcachedAddr  string   `yaml:"memcachedAddr"`
	EnableTrace    bool     `yaml:"enableTrace"`
	TraceEndpoint  string   `yaml:"traceEndpoint"`
	LogLevel       string   `yaml:"logLevel"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type Community struct {
	ReplayIdentities int           `yaml:"replayIdentities"`
	ReplayUtterances int           `yaml:"replayUtterances"`
	CacheTTL         time.Duration `yaml:"cacheTTL"`
	ReadChunkSize    int           `yaml:"readChunkSize"`
}

func Default() Config {
	return Config{
		Server: Server{
			Listen:      ":5000",
			DataDir:     "./community-server",
			RecordStore: RecordStoreFilesystem,
			LogLevel:    "info",
		},
		Community: Community{
			ReplayIdentities: domain.ReplayIdentities,
			ReplayUtterances: domain.ReplayUtterances,
			CacheTTL:         5 * time.Minute,
		},
	}
}

// Load reads path over the defaults.
func Load(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	config := Default()
	err = yaml.NewDecoder(file).Decode(&config)
	if err != nil {
		return Config{}, err
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) Validate() error {
	switch c.Server.RecordStore {
	case RecordStoreFilesystem:
	case RecordStorePostgres:
		if c.Server.PostgresDsn == "" {
			return fmt.Errorf("server.postgresDsn is required for the postgres record store")
		}
	default:
		return fmt.Errorf("unknown server.recordStore %q", c.Server.RecordStore)
	}
	if c.Server.DataDir == "" {
		return fmt.Errorf("server.dataDir is required")
	}
	if c.Server.EnableTrace && c.Server.TraceEndpoint == "" {
		return fmt.Errorf("server.traceEndpoint is required when tracing is enabled")
	}
	if c.Community.ReplayIdentities < 0 || c.Community.ReplayUtterances < 0 {
		return fmt.Errorf("community replay limits must not be negative")
	}
	return nil
}
