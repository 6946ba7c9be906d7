package blair

import (
	"fmt"
	"time"
)

// Option configures a Switch.
type Option func(s *Switch) error

// WithTransportFactory sets how ports added by name, or by config, get their
// transport.
func WithTransportFactory(f TransportFactory) Option {
	return func(s *Switch) error {
		s.factory = f

		return nil
	}
}

// WithReceiveTimeout bounds each receive on a port, and so how long a worker may take
// to notice a queued command.
func WithReceiveTimeout(d time.Duration) Option {
	return func(s *Switch) error {
		if d <= 0 {
			return fmt.Errorf("%w: receive timeout must be positive", ErrConfig)
		}

		s.receiveTimeout = d

		return nil
	}
}

// WithIdleDelay sets how long a worker sleeps between checks while its port is down
// or monitoring.
func WithIdleDelay(d time.Duration) Option {
	return func(s *Switch) error {
		if d <= 0 {
			return fmt.Errorf("%w: idle delay must be positive", ErrConfig)
		}

		s.idleDelay = d

		return nil
	}
}
