package indicator

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Multi combines multiple Indicator implementations. Timed signals run on
// all of them at once.
type Multi struct {
	indicators []Indicator
}

// NewMulti returns a Multi over inds.
func NewMulti(inds ...Indicator) *Multi {
	return &Multi{indicators: inds}
}

// Idle implements Indicator.Idle.
func (m *Multi) Idle() {
	for _, ind := range m.indicators {
		ind.Idle()
	}
}

// Granted implements Indicator.Granted.
func (m *Multi) Granted(ctx context.Context, doorID string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, ind := range m.indicators {
		ind := ind // per-iteration copy; go.mod targets go 1.21
		g.Go(func() error { return ind.Granted(ctx, doorID) })
	}
	return g.Wait()
}

// Denied implements Indicator.Denied.
func (m *Multi) Denied(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, ind := range m.indicators {
		ind := ind // per-iteration copy; go.mod targets go 1.21
		g.Go(func() error { return ind.Denied(ctx) })
	}
	return g.Wait()
}

// ConnectionLost implements Indicator.ConnectionLost.
func (m *Multi) ConnectionLost() {
	for _, ind := range m.indicators {
		ind.ConnectionLost()
	}
}

// SetConnected forwards to every indicator that tracks the connection.
func (m *Multi) SetConnected() {
	for _, ind := range m.indicators {
		if c, ok := ind.(Connector); ok {
			c.SetConnected()
		}
	}
}

// Shutdown implements Indicator.Shutdown.
func (m *Multi) Shutdown() {
	for _, ind := range m.indicators {
		ind.Shutdown()
	}
}

// Release implements Indicator.Release.
func (m *Multi) Release() error {
	return releaseAll(m.indicators)
}
