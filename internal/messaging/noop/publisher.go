// Package noop provides a Publisher for runs without a configured broker.
package noop

import "context"

// Publisher discards every event. Orders created through it stay PENDING
// until a result arrives by some other path, so it is only suitable for
// local development and tests.
type Publisher struct{}

func (Publisher) Publish(_ context.Context, _ string, _ any) error { return nil }
