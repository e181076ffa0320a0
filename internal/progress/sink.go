package progress

import "context"

// Sink consumes progress events. The hub delivers events to each sink
// one at a time, in emission order; implementations must honor ctx
// deadlines and be safe for repeated calls.
type Sink interface {
	Consume(ctx context.Context, evt Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events; Hub satisfies this interface so
// the engine stays agnostic about how events are buffered or consumed.
type Emitter interface {
	Emit(evt Event)
}
