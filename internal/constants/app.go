package constants

import (
	"time"
)

// Encoding
const (
	// EncodeChunkSize - bytes read from a source per encoder step (192 KiB).
	// A multiple of 3 so every chunk but the last encodes without base64 padding.
	EncodeChunkSize = 3 * 64 * 1024

	// MaxEncodeChunkSizeKB - upper bound for a configured chunk (16 MiB)
	MaxEncodeChunkSizeKB = 16 * 1024

	// SniffLength - bytes inspected for content-type detection
	SniffLength = 512
)

// Upload concurrency
const (
	// DefaultMaxConcurrent - default number of items encoded/transmitted at once
	DefaultMaxConcurrent = 4

	// MinMaxConcurrent - lower bound for --concurrency
	MinMaxConcurrent = 1

	// MaxMaxConcurrent - upper bound for --concurrency
	MaxMaxConcurrent = 32
)

// Progress blending. The encode phase owns [1,60], the transmit phase owns
// [61,99], and 100 is reserved for terminal states.
const (
	ProgressEncodeMin   = 1
	ProgressEncodeMax   = 60
	ProgressTransmitMin = 61
	ProgressTransmitMax = 99
	ProgressDone        = 100
)

// HTTP timeouts
const (
	// HTTPDialTimeout - TCP connect timeout
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive probe interval
	HTTPDialKeepAlive = 30 * time.Second

	// HTTPIdleConnTimeout - how long idle pooled connections are kept
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - extended for slow networks and high concurrency
	HTTPTLSHandshakeTimeout = 30 * time.Second

	// HTTPExpectContinueTimeout - wait for 100-continue
	HTTPExpectContinueTimeout = 1 * time.Second

	// DefaultStoreTimeout - per-request bound on a single transmit.
	// This is the only timeout that applies to a stuck item.
	DefaultStoreTimeout = 300 * time.Second
)

// Store retry (transport-level only; items are never retried automatically)
const (
	// DefaultStoreRetryMax - retryablehttp attempts beyond the first
	DefaultStoreRetryMax = 0

	// StoreReadRetryMax - retries for list/search, which have no side effects
	StoreReadRetryMax = 3

	RetryWaitMin = 1 * time.Second
	RetryWaitMax = 30 * time.Second
)

// Event bus
const (
	// EventBusDefaultBuffer - per-subscriber channel buffer
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - cap for caller-supplied buffer sizes
	EventBusMaxBuffer = 10000
)

// Progress UI
const (
	// ProgressRefreshRate - mpb redraw interval
	ProgressRefreshRate = 300 * time.Millisecond

	// ProgressBarWidth - total bar width in columns
	ProgressBarWidth = 100
)

// Log rotation
const (
	LogMaxSizeMB  = 10
	LogMaxBackups = 5
	LogMaxAgeDays = 30
)
