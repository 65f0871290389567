package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/dtn-gateway/internal/config"
	"github.com/rickgao/dtn-gateway/internal/version"
)

// BuildConnString builds a postgres:// URL from config. Connections are
// tagged with the gateway's client name so they show up in pg_stat_activity.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("application_name", version.ClientName())

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}
