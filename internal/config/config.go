package config

import "time"

// GatewayConfig is the root configuration for a gateway instance.
type GatewayConfig struct {
	Instance    InstanceConfig        `yaml:"instance"`
	Upstream    UpstreamConfig        `yaml:"upstream"`
	Feeds       map[string]FeedConfig `yaml:"feeds"`
	Schemas     map[string]string     `yaml:"schemas"`
	SymbolsFile string                `yaml:"symbols_file"`
	TypeHints   TypeHintsConfig       `yaml:"type_hints"`
	Admin       AdminConfig           `yaml:"admin"`
	Hub         HubConfig             `yaml:"hub"`
	NATS        NATSConfig            `yaml:"nats"`
	Database    DBConfig              `yaml:"database"`
	Journal     JournalConfig         `yaml:"journal"`
	Metrics     MetricsConfig         `yaml:"metrics"`
	Logging     LoggingConfig         `yaml:"logging"`

	// dir is the directory of the loaded file, used to resolve relative paths.
	dir string
}

// InstanceConfig identifies this gateway.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// UpstreamConfig holds the IQFeed client endpoints and reconnect policy.
type UpstreamConfig struct {
	Host         string        `yaml:"host"`
	Level1Port   int           `yaml:"level1_port"`
	Level2Port   int           `yaml:"level2_port"`
	AdminPort    int           `yaml:"admin_port"`
	Protocol     string        `yaml:"protocol"` // Sent as S,SET PROTOCOL,<version>
	RetryDelay   time.Duration `yaml:"retry_delay"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// FeedConfig overrides a single feed. Keys are feed names (L1, L2, ADMIN).
type FeedConfig struct {
	Disabled bool   `yaml:"disabled"`
	Address  string `yaml:"address"` // host:port, replaces upstream.host and the port
}

// TypeHintsConfig overrides the numeric field tables. Either list the field
// names inline or point at a YAML file with integer/float lists.
type TypeHintsConfig struct {
	File    string   `yaml:"file"`
	Integer []string `yaml:"integer"`
	Float   []string `yaml:"float"`
}

// AdminConfig controls the admin-port LOGIN exchange.
type AdminConfig struct {
	Login           bool          `yaml:"login"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	CredentialsFile string        `yaml:"credentials_file"` // "user,pass" on the first line
	Timeout         time.Duration `yaml:"timeout"`
	Required        bool          `yaml:"required"` // Exit when login fails
}

// HubConfig holds WebSocket broadcast settings.
type HubConfig struct {
	Address      string        `yaml:"address"`
	Path         string        `yaml:"path"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PingInterval time.Duration `yaml:"ping_interval"`
	PongTimeout  time.Duration `yaml:"pong_timeout"`
	MaxPending   int           `yaml:"max_pending"`
}

// NATSConfig holds the optional NATS mirror settings.
type NATSConfig struct {
	Enabled       bool          `yaml:"enabled"`
	URL           string        `yaml:"url"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
	MaxReconnects int           `yaml:"max_reconnects"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// JournalConfig holds the feed event journal writer settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// MetricsConfig holds the Prometheus and health endpoint settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LoggingConfig holds slog settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
