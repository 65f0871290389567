package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *GatewayConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Upstream.Host == "" {
		return errors.New("upstream.host is required")
	}
	if err := validatePort("upstream.level1_port", c.Upstream.Level1Port); err != nil {
		return err
	}
	if err := validatePort("upstream.level2_port", c.Upstream.Level2Port); err != nil {
		return err
	}
	if err := validatePort("upstream.admin_port", c.Upstream.AdminPort); err != nil {
		return err
	}
	if c.Upstream.RetryDelay <= 0 {
		return errors.New("upstream.retry_delay must be > 0")
	}

	for name := range c.Feeds {
		switch name {
		case "L1", "L2", "ADMIN":
		default:
			return fmt.Errorf("feeds.%s: unknown feed (want L1, L2 or ADMIN)", name)
		}
	}

	for id, path := range c.Schemas {
		if strings.TrimSpace(path) == "" {
			return fmt.Errorf("schemas.%s: path is required", id)
		}
	}
	if c.SymbolsFile == "" {
		return errors.New("symbols_file is required")
	}

	if c.Admin.Login && c.Admin.CredentialsFile == "" && c.Admin.User == "" {
		return errors.New("admin.user or admin.credentials_file is required when admin.login is set")
	}

	if c.Hub.Address == "" {
		return errors.New("hub.address is required")
	}
	if !strings.HasPrefix(c.Hub.Path, "/") {
		return fmt.Errorf("hub.path must start with /, got %q", c.Hub.Path)
	}
	if c.Hub.MaxPending < 1 {
		return errors.New("hub.max_pending must be >= 1")
	}
	if c.Hub.PongTimeout <= c.Hub.PingInterval {
		return fmt.Errorf("hub.pong_timeout (%s) must exceed hub.ping_interval (%s)", c.Hub.PongTimeout, c.Hub.PingInterval)
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return errors.New("nats.url is required when nats.enabled is set")
	}

	if c.Journal.Enabled {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
	}

	if err := validatePort("metrics.port", c.Metrics.Port); err != nil {
		return err
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func validatePort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", name, port)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
