package services

import (
	"time"

	"childminder/internal/metrics"
)

// settings are shared by every service in this package.
type settings struct {
	loc     *time.Location
	now     func() time.Time
	metrics *metrics.Metrics
}

// Option customises a service.
type Option func(*settings)

// WithLocation sets the location used to derive calendar days. Defaults to
// time.Local.
func WithLocation(loc *time.Location) Option {
	return func(s *settings) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetrics records operations on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

func newSettings(opts []Option) settings {
	s := settings{loc: time.Local, now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// today returns the current instant in the configured location.
func (s settings) today() time.Time {
	return s.now().In(s.loc)
}
