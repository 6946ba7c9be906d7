package blair

import "time"

const (
	// DefaultReceiveTimeout bounds a single Receive so a worker observes its command
	// queue at least this often.
	DefaultReceiveTimeout = 100 * time.Millisecond

	// DefaultIdleDelay is how long a worker sleeps while its port is down or
	// monitoring.
	DefaultIdleDelay = 200 * time.Millisecond

	// ReadBufferSize fits any frame up to a 9000 byte jumbo payload plus a tag.
	ReadBufferSize = 9018

	// EthPAll is ETH_P_ALL, every protocol.
	EthPAll = 0x0003

	defaultShardCount = 32
)
