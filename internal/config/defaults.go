package config

import (
	"os"
	"time"
)

// Default values for optional configuration fields.
const (
	DefaultUpstreamHost  = "127.0.0.1"
	DefaultLevel1Port    = 5009
	DefaultLevel2Port    = 9200
	DefaultAdminPort     = 9300
	DefaultProtocol      = "6.2"
	DefaultRetryDelay    = 5 * time.Second
	DefaultDialTimeout   = 10 * time.Second
	DefaultWriteTimeout  = 5 * time.Second
	DefaultLevel1Schema  = "L1FeedMessages.csv"
	DefaultLevel2Schema  = "MarketDepthMessages.csv"
	DefaultSymbolsFile   = "symbols.csv"
	DefaultAdminTimeout  = 10 * time.Second
	DefaultHubAddress    = ":8080"
	DefaultHubPath       = "/"
	DefaultHubWrite      = 10 * time.Second
	DefaultPingInterval  = 30 * time.Second
	DefaultPongTimeout   = 60 * time.Second
	DefaultMaxPending    = 4096
	DefaultNATSURL       = "nats://127.0.0.1:4222"
	DefaultNATSPrefix    = "dtn"
	DefaultReconnectWait = 2 * time.Second
	DefaultMaxReconnects = -1
	DefaultDBPort        = 5432
	DefaultDBSSLMode     = "prefer"
	DefaultMaxConns      = 4
	DefaultMinConns      = 1
	DefaultBatchSize     = 100
	DefaultFlushInterval = 1 * time.Second
	DefaultMetricsPort   = 9090
	DefaultMetricsPath   = "/metrics"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
)

var osHostname = os.Hostname

func (c *GatewayConfig) applyDefaults() {
	if c.Instance.ID == "" {
		if host, err := osHostname(); err == nil {
			c.Instance.ID = host
		}
	}

	// Upstream defaults
	if c.Upstream.Host == "" {
		c.Upstream.Host = DefaultUpstreamHost
	}
	if c.Upstream.Level1Port == 0 {
		c.Upstream.Level1Port = DefaultLevel1Port
	}
	if c.Upstream.Level2Port == 0 {
		c.Upstream.Level2Port = DefaultLevel2Port
	}
	if c.Upstream.AdminPort == 0 {
		c.Upstream.AdminPort = DefaultAdminPort
	}
	if c.Upstream.Protocol == "" {
		c.Upstream.Protocol = DefaultProtocol
	}
	if c.Upstream.RetryDelay == 0 {
		c.Upstream.RetryDelay = DefaultRetryDelay
	}
	if c.Upstream.DialTimeout == 0 {
		c.Upstream.DialTimeout = DefaultDialTimeout
	}
	if c.Upstream.WriteTimeout == 0 {
		c.Upstream.WriteTimeout = DefaultWriteTimeout
	}

	// Schema and symbol files
	if c.Schemas == nil {
		c.Schemas = map[string]string{}
	}
	if _, ok := c.Schemas["L1"]; !ok {
		c.Schemas["L1"] = DefaultLevel1Schema
	}
	if _, ok := c.Schemas["L2"]; !ok {
		c.Schemas["L2"] = DefaultLevel2Schema
	}
	if c.SymbolsFile == "" {
		c.SymbolsFile = DefaultSymbolsFile
	}

	if c.Admin.Timeout == 0 {
		c.Admin.Timeout = DefaultAdminTimeout
	}

	// Hub defaults
	if c.Hub.Address == "" {
		c.Hub.Address = DefaultHubAddress
	}
	if c.Hub.Path == "" {
		c.Hub.Path = DefaultHubPath
	}
	if c.Hub.WriteTimeout == 0 {
		c.Hub.WriteTimeout = DefaultHubWrite
	}
	if c.Hub.PingInterval == 0 {
		c.Hub.PingInterval = DefaultPingInterval
	}
	if c.Hub.PongTimeout == 0 {
		c.Hub.PongTimeout = DefaultPongTimeout
	}
	if c.Hub.MaxPending == 0 {
		c.Hub.MaxPending = DefaultMaxPending
	}

	// NATS defaults
	if c.NATS.URL == "" {
		c.NATS.URL = DefaultNATSURL
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = DefaultNATSPrefix
	}
	if c.NATS.ReconnectWait == 0 {
		c.NATS.ReconnectWait = DefaultReconnectWait
	}
	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = DefaultMaxReconnects
	}

	// Database defaults
	applyDBDefaults(&c.Database)

	// Journal defaults
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultFlushInterval
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
