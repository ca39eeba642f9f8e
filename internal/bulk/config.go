package bulk

import "fmt"

// Config tunes batching and backpressure. None of these values affect which
// documents are indexed, only how they are grouped and paced.
type Config struct {
	// BatchSize is the maximum number of units per bulk request.
	BatchSize int
	// FlushBytes flushes a chunk once its encoded bodies reach this size.
	FlushBytes int
	// BufferBytes bounds the encoded bytes held locally (pending, queued
	// and in flight). Insert blocks while the budget is exhausted.
	BufferBytes int64
	// Workers is the number of concurrent senders.
	Workers int
	// QueueDepth is the number of flushed chunks that may wait for a worker.
	QueueDepth int
	// RequestsPerSecond throttles bulk requests; 0 disables throttling.
	RequestsPerSecond float64
}

// DefaultConfig returns the defaults used when no configuration is given.
func DefaultConfig() Config {
	return Config{
		BatchSize:   500,
		FlushBytes:  5 << 20,
		BufferBytes: 64 << 20,
		Workers:     2,
		QueueDepth:  4,
	}
}

// Validate checks the configuration for values the channel cannot run with.
func (c Config) Validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1, got %d", c.BatchSize)
	}
	if c.FlushBytes < 1 {
		return fmt.Errorf("flush bytes must be at least 1, got %d", c.FlushBytes)
	}
	if c.BufferBytes < int64(c.FlushBytes) {
		return fmt.Errorf("buffer bytes (%d) must be at least flush bytes (%d)", c.BufferBytes, c.FlushBytes)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.QueueDepth < 0 {
		return fmt.Errorf("queue depth cannot be negative, got %d", c.QueueDepth)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second cannot be negative, got %g", c.RequestsPerSecond)
	}
	return nil
}
