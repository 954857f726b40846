package command

import "time"

// Config holds processor tuning knobs. Designed for environment-based
// configuration via core/config.
type Config struct {
	// AdmissionWorkers is the number of goroutines running filter-chain
	// evaluations. Admission is offloaded because a filter may block or
	// re-enter the processor.
	AdmissionWorkers int `env:"COMMAND_ADMISSION_WORKERS" envDefault:"4"`

	// AdmissionBuffer is the admission queue size. When the queue is full,
	// passes overflow to dedicated goroutines instead of blocking.
	AdmissionBuffer int `env:"COMMAND_ADMISSION_BUFFER" envDefault:"64"`

	// ShutdownTimeout bounds how long Stop waits for in-flight work.
	ShutdownTimeout time.Duration `env:"COMMAND_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// DefaultConfig returns sensible defaults for production use.
func DefaultConfig() Config {
	return Config{
		AdmissionWorkers: 4,
		AdmissionBuffer:  64,
		ShutdownTimeout:  30 * time.Second,
	}
}

// normalize clamps invalid values back to usable minimums.
func (c Config) normalize() Config {
	if c.AdmissionWorkers < 1 {
		c.AdmissionWorkers = 1
	}
	if c.AdmissionBuffer < 0 {
		c.AdmissionBuffer = 0
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	return c
}
