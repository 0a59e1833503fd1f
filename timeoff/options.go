package timeoff

import (
	"time"

	"github.com/warp/leave-engine/generic"
	"go.uber.org/zap"
)

// DefaultDomain is the organization email domain used when none is configured.
const DefaultDomain = "tempo.fit"

// Option configures a service constructed by this package.
type Option func(*settings)

type settings struct {
	clock    generic.Clock
	location *time.Location
	logger   *zap.Logger
	notifier Notifier
	domain   string
}

func newSettings(opts []Option) settings {
	s := settings{
		clock:    generic.SystemClock{},
		location: time.UTC,
		logger:   zap.NewNop(),
		notifier: NopNotifier{},
		domain:   DefaultDomain,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func (s settings) today() generic.Date { return generic.Today(s.clock, s.location) }
func (s settings) now() time.Time      { return s.clock.Now().UTC() }

// WithClock sets the source of the current time.
func WithClock(c generic.Clock) Option {
	return func(s *settings) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLocation sets the location in which "today" is evaluated.
func WithLocation(loc *time.Location) Option {
	return func(s *settings) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithNotifier sets where lifecycle notifications are sent.
func WithNotifier(n Notifier) Option {
	return func(s *settings) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithDomain sets the organization email domain.
func WithDomain(domain string) Option {
	return func(s *settings) {
		if domain != "" {
			s.domain = domain
		}
	}
}
