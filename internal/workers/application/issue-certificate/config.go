// internal/workers/application/issue-certificate/config.go
package issuecertificate

import (
	"time"

	"pmc-registration/internal/common/config"
)

type Config struct {
	Timeout    time.Duration
	PathPrefix string
}

func LoadConfig(wc config.WorkerConfig) *Config {
	cfg := &Config{Timeout: 15 * time.Second, PathPrefix: "certificates/"}
	if wc.Timeout > 0 {
		cfg.Timeout = config.GetDuration(wc.Timeout)
	}
	return cfg
}
