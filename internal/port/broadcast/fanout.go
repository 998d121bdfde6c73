package broadcast

import "context"

type fanout struct {
	targets []Broadcaster
}

// Fanout returns a Broadcaster that forwards every event to all targets.
// Nil targets are skipped.
func Fanout(targets ...Broadcaster) Broadcaster {
	kept := make([]Broadcaster, 0, len(targets))
	for _, t := range targets {
		if t != nil {
			kept = append(kept, t)
		}
	}
	return &fanout{targets: kept}
}

func (f *fanout) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	for _, t := range f.targets {
		t.BroadcastEvent(ctx, eventType, payload)
	}
}
