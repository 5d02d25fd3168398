package privacy

import (
	"io"

	"github.com/benbjohnson/clock"
	"github.com/rigado/blehci"
)

// An Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock driving address rotation.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithRand sets the source of address and interval randomness. Defaults to crypto/rand.
func WithRand(r io.Reader) Option {
	return func(m *Manager) {
		m.rnd = &randSource{r: r}
	}
}

// WithErrorHandler sets the handler receiving fatal errors. Defaults to
// blehci.DefaultErrorHandler.
func WithErrorHandler(fn func(error)) Option {
	return func(m *Manager) {
		m.errorHandler = fn
	}
}

func WithLogger(l blehci.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}
