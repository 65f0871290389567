package main

import (
	"net"
	"strconv"

	"github.com/rickgao/dtn-gateway/internal/config"
	"github.com/rickgao/dtn-gateway/internal/gateway"
)

// buildProfiles applies upstream ports, protocol and per-feed overrides to
// the default L1/L2/admin profiles. Disabled feeds are left out.
func buildProfiles(cfg *config.GatewayConfig) []gateway.Profile {
	ports := map[string]int{
		"L1":    cfg.Upstream.Level1Port,
		"L2":    cfg.Upstream.Level2Port,
		"ADMIN": cfg.Upstream.AdminPort,
	}
	handshake := "S,SET PROTOCOL," + cfg.Upstream.Protocol

	var out []gateway.Profile
	for _, p := range gateway.DefaultProfiles(cfg.Upstream.Host) {
		if !cfg.FeedEnabled(p.Name) {
			continue
		}

		p.Address = net.JoinHostPort(cfg.Upstream.Host, strconv.Itoa(ports[p.Name]))
		if override := cfg.Feeds[p.Name].Address; override != "" {
			p.Address = override
		}
		p.Handshake = []string{handshake}

		out = append(out, p)
	}
	return out
}
