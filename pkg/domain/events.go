package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventStageStart  EventType = "stage_start"
	EventStageFinish EventType = "stage_finish"
	EventStageSkip   EventType = "stage_skip"
)

// StageEvent is emitted by the engine around every node execution.
type StageEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	Type      EventType     `json:"type"`
	RunID     string        `json:"run_id"`
	Node      string        `json:"node"`
	Index     int           `json:"index"` // item index for mapped nodes, -1 otherwise
	Duration  time.Duration `json:"duration,omitempty"`
	Err       error         `json:"-"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnStageStart  func(context.Context, *StageEvent)
	OnStageFinish func(context.Context, *StageEvent)
	OnStageSkip   func(context.Context, *StageEvent)
}

// ChainHooks returns hooks that call every given hook in order.
func ChainHooks(hooks ...LifecycleHooks) LifecycleHooks {
	chain := func(pick func(LifecycleHooks) func(context.Context, *StageEvent)) func(context.Context, *StageEvent) {
		var fns []func(context.Context, *StageEvent)
		for _, h := range hooks {
			if fn := pick(h); fn != nil {
				fns = append(fns, fn)
			}
		}
		if len(fns) == 0 {
			return nil
		}
		return func(ctx context.Context, ev *StageEvent) {
			for _, fn := range fns {
				fn(ctx, ev)
			}
		}
	}
	return LifecycleHooks{
		OnStageStart:  chain(func(h LifecycleHooks) func(context.Context, *StageEvent) { return h.OnStageStart }),
		OnStageFinish: chain(func(h LifecycleHooks) func(context.Context, *StageEvent) { return h.OnStageFinish }),
		OnStageSkip:   chain(func(h LifecycleHooks) func(context.Context, *StageEvent) { return h.OnStageSkip }),
	}
}
