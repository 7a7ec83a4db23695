package main

import (
	"net/http"

	"go.uber.org/zap"

	"presentos/internal/capability"
	"presentos/internal/config"
	"presentos/internal/registry"
)

// buildCapabilities 有 endpoint 的走 HTTP，其余用本地占位实现
func buildCapabilities(cfg *config.Config, reg *registry.Registry, log *zap.Logger) (capability.Set, error) {
	timeout := cfg.Capabilities.HTTPTimeout
	if timeout <= 0 {
		timeout = 2 * registry.DefaultTimeout
	}
	client := &http.Client{Timeout: timeout}

	endpoints := map[string]string{}
	var local []capability.Capability
	for _, name := range reg.Names() {
		c, _ := reg.Get(name)
		if c.Endpoint != "" {
			endpoints[name] = c.Endpoint
			continue
		}
		log.Warn("capability has no endpoint, using local echo", zap.String("capability", name))
		local = append(local, capability.Echo(name))
	}

	remote, err := capability.Endpoints(endpoints, client, cfg.Capabilities.Breaker, log)
	if err != nil {
		return nil, err
	}
	set := capability.NewSet(append(remote, local...)...)
	if err := set.Covers(reg.Names()); err != nil {
		return nil, err
	}
	log.Info("capabilities ready",
		zap.Int("remote", len(remote)),
		zap.Int("local", len(local)),
		zap.Duration("http_timeout", timeout),
	)
	return set, nil
}
