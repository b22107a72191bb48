package ops

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"main/internal/realtime"
	"main/pkg/conn"

	"github.com/yanun0323/errors"
)

const (
	defaultAddr             = ":8000"
	defaultIssuer           = "timetable-hub"
	defaultHeartbeatSeconds = 30
	defaultAPIBase          = "http://localhost:8000"
)

// HubFileConfig mirrors the JSON config layout for the hub binary.
type HubFileConfig struct {
	Addr               string           `json:"addr"`
	Postgres           *PostgresConfig  `json:"postgres"`
	Auth               AuthConfig       `json:"auth"`
	HeartbeatSeconds   int              `json:"heartbeatSeconds"`
	Profiling          *ProfilingConfig `json:"profiling"`
	DisableRequestLogs bool             `json:"disableRequestLogs"`
}

// PostgresConfig describes the account database connection.
type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslMode"`
}

// AuthConfig describes token issuing.
type AuthConfig struct {
	Secret          string `json:"secret"`
	TokenTTLMinutes int    `json:"tokenTtlMinutes"`
	Issuer          string `json:"issuer"`
}

// ProfilingConfig enables continuous profiling when present.
type ProfilingConfig struct {
	ServerAddress   string `json:"serverAddress"`
	ApplicationName string `json:"applicationName"`
}

// HubConfig is the resolved hub configuration ready for use.
type HubConfig struct {
	Addr               string
	Postgres           *conn.Option
	AuthSecret         string
	TokenTTL           time.Duration
	Issuer             string
	Heartbeat          time.Duration
	Profiling          *ProfilingConfig
	DisableRequestLogs bool
}

// LoadHub reads a JSON config file and resolves the hub configuration.
func LoadHub(path string) (HubConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return HubConfig{}, errors.Wrap(err, "read hub config")
	}
	var cfg HubFileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return HubConfig{}, errors.Wrap(err, "parse hub config")
	}
	return resolveHub(cfg)
}

func resolveHub(cfg HubFileConfig) (HubConfig, error) {
	if cfg.Auth.Secret == "" {
		return HubConfig{}, errors.New("auth.secret is empty")
	}
	if cfg.Profiling != nil && cfg.Profiling.ServerAddress == "" {
		return HubConfig{}, errors.New("profiling.serverAddress is empty")
	}

	addr := cfg.Addr
	if addr == "" {
		addr = defaultAddr
	}
	issuer := cfg.Auth.Issuer
	if issuer == "" {
		issuer = defaultIssuer
	}
	heartbeatSeconds := cfg.HeartbeatSeconds
	if heartbeatSeconds <= 0 {
		heartbeatSeconds = defaultHeartbeatSeconds
	}

	var pg *conn.Option
	if cfg.Postgres != nil {
		pg = &conn.Option{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
			SSLMode:  cfg.Postgres.SSLMode,
		}
	}

	profiling := cfg.Profiling
	if profiling != nil && profiling.ApplicationName == "" {
		profiling.ApplicationName = defaultIssuer
	}

	return HubConfig{
		Addr:               addr,
		Postgres:           pg,
		AuthSecret:         cfg.Auth.Secret,
		TokenTTL:           time.Duration(cfg.Auth.TokenTTLMinutes) * time.Minute,
		Issuer:             issuer,
		Heartbeat:          time.Duration(heartbeatSeconds) * time.Second,
		Profiling:          profiling,
		DisableRequestLogs: cfg.DisableRequestLogs,
	}, nil
}

// ClientFileConfig mirrors the JSON config layout for the client binary.
type ClientFileConfig struct {
	APIBase     string       `json:"apiBase"`
	WSBase      string       `json:"wsBase"`
	SessionFile string       `json:"sessionFile"`
	Retry       *RetryConfig `json:"retry"`
}

// RetryConfig overrides the reconnect policy.
type RetryConfig struct {
	Ceiling int `json:"ceiling"`
	StepMs  int `json:"stepMs"`
}

// ClientConfig is the resolved client configuration ready for use.
type ClientConfig struct {
	APIBase     string
	WSBase      string
	SessionFile string
	Retry       realtime.RetryPolicy
}

// LoadClient reads a JSON config file and resolves the client configuration.
// A missing file resolves to defaults.
func LoadClient(path string) (ClientConfig, error) {
	var cfg ClientFileConfig
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return ClientConfig{}, errors.Wrap(err, "parse client config")
		}
	case os.IsNotExist(err):
	default:
		return ClientConfig{}, errors.Wrap(err, "read client config")
	}
	return resolveClient(cfg)
}

func resolveClient(cfg ClientFileConfig) (ClientConfig, error) {
	apiBase := strings.TrimRight(cfg.APIBase, "/")
	if apiBase == "" {
		apiBase = defaultAPIBase
	}

	wsBase := strings.TrimRight(cfg.WSBase, "/")
	if wsBase == "" {
		wsBase = deriveWSBase(apiBase)
	}

	sessionFile := cfg.SessionFile
	if sessionFile == "" {
		sessionFile = defaultSessionFile()
	}

	retry := realtime.RetryPolicy{}
	if cfg.Retry != nil {
		if cfg.Retry.Ceiling < 0 {
			return ClientConfig{}, errors.New("retry.ceiling must be >= 0")
		}
		if cfg.Retry.StepMs < 0 {
			return ClientConfig{}, errors.New("retry.stepMs must be >= 0")
		}
		retry.Ceiling = cfg.Retry.Ceiling
		retry.Step = time.Duration(cfg.Retry.StepMs) * time.Millisecond
	}

	return ClientConfig{
		APIBase:     apiBase,
		WSBase:      wsBase,
		SessionFile: sessionFile,
		Retry:       retry,
	}, nil
}

// deriveWSBase maps the HTTP base onto the websocket endpoint prefix.
func deriveWSBase(apiBase string) string {
	switch {
	case strings.HasPrefix(apiBase, "https://"):
		return "wss://" + strings.TrimPrefix(apiBase, "https://") + "/ws"
	case strings.HasPrefix(apiBase, "http://"):
		return "ws://" + strings.TrimPrefix(apiBase, "http://") + "/ws"
	default:
		return "ws://" + apiBase + "/ws"
	}
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "session.json"
	}
	return filepath.Join(dir, "timetable-client", "session.json")
}
