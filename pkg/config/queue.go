package config

import "time"

// QueueConfig controls the inbound-email dispatcher and the timeout budget of
// every external call a pipeline makes.
type QueueConfig struct {
	// WorkerCount is the number of pipeline workers. Per-thread locks keep
	// same-thread events serialized regardless of worker count.
	WorkerCount int `yaml:"worker_count"`

	// QueueSize bounds the inbound event buffer; a full buffer rejects the
	// event so the email transport redelivers it later.
	QueueSize int `yaml:"queue_size"`

	// GracefulShutdownTimeout is the max time to wait for in-flight pipelines
	// to finish during shutdown.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`

	// Per-call timeout budgets for external I/O.
	LLMTimeout   time.Duration `yaml:"llm_timeout"`
	EmailTimeout time.Duration `yaml:"email_timeout"`
	ChatTimeout  time.Duration `yaml:"chat_timeout"`
}

// DefaultQueueConfig returns the built-in dispatcher defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		WorkerCount:             4,
		QueueSize:               64,
		GracefulShutdownTimeout: 2 * time.Minute,
		LLMTimeout:              30 * time.Second,
		EmailTimeout:            15 * time.Second,
		ChatTimeout:             10 * time.Second,
	}
}

func (q QueueConfig) validate() error {
	if q.WorkerCount <= 0 {
		return NewValidationError("queue.worker_count", "must be positive")
	}
	if q.QueueSize <= 0 {
		return NewValidationError("queue.queue_size", "must be positive")
	}
	if q.GracefulShutdownTimeout <= 0 {
		return NewValidationError("queue.graceful_shutdown_timeout", "must be positive")
	}
	return nil
}
