// internal/workers/notification/notify-applicant/config.go
package notifyapplicant

import (
	"time"

	"pmc-registration/internal/common/config"
)

type Config struct {
	Timeout time.Duration
	// FailOnUndelivered fails the job, so the broker retries it, when no
	// channel could deliver.
	FailOnUndelivered bool
}

func LoadConfig(wc config.WorkerConfig) *Config {
	cfg := &Config{Timeout: 30 * time.Second, FailOnUndelivered: wc.MaxRetries > 0}
	if wc.Timeout > 0 {
		cfg.Timeout = config.GetDuration(wc.Timeout)
	}
	return cfg
}
