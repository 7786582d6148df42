package entity

import "context"

// Tracker receives entities as they are created or hydrated. Track returns
// the canonical instance for the entity's identity, which is e itself unless
// an instance with the same class and identity is already tracked.
type Tracker interface {
	Track(e Entity) Entity
}

type trackerKey struct{}

// WithTracker returns a context carrying t.
func WithTracker(ctx context.Context, t Tracker) context.Context {
	return context.WithValue(ctx, trackerKey{}, t)
}

// TrackerFrom returns the tracker carried by ctx, if any.
func TrackerFrom(ctx context.Context) (Tracker, bool) {
	t, ok := ctx.Value(trackerKey{}).(Tracker)
	return t, ok
}

func track(ctx context.Context, e Entity) Entity {
	if t, ok := TrackerFrom(ctx); ok {
		return t.Track(e)
	}
	return e
}
