package event

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/cel-go/cel"
)

// Handler receives published events. Delivery is synchronous: the
// publisher does not return until every matching handler has run, so
// handlers observe stores in the exact state that produced the event.
type Handler func(Event)

// Bus is the typed publish/subscribe surface for memory events.
// Subscription management is safe for concurrent use; publishing follows
// the single-owner model of the rest of the subsystem.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscription
	logger *slog.Logger

	envOnce sync.Once
	env     *cel.Env
	envErr  error
}

type subscription struct {
	kinds   map[Kind]struct{} // empty means all kinds
	program cel.Program       // nil means no filter
	handler Handler
}

// NewBus creates an event bus. A nil logger falls back to slog.Default.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{subs: make(map[int]*subscription), logger: logger}
}

// Subscribe registers a handler for the given kinds, or for every kind
// when none are listed. The returned func cancels the subscription.
func (b *Bus) Subscribe(handler Handler, kinds ...Kind) func() {
	sub := &subscription{handler: handler}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]struct{}, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = struct{}{}
		}
	}
	return b.add(sub)
}

// SubscribeWhere registers a handler gated by a CEL expression evaluated
// against each event's attribute map, bound to the variable "event".
// Expressions must produce a bool; compilation errors are reported here,
// at subscribe time, never at delivery time.
//
// Example:
//
//	cancel, err := bus.SubscribeWhere(
//	    `event.kind == "turn_appended" && event.role == "subject"`,
//	    func(e event.Event) { ... },
//	)
func (b *Bus) SubscribeWhere(expr string, handler Handler) (func(), error) {
	env, err := b.filterEnv()
	if err != nil {
		return nil, err
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("event: compile filter: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("event: filter must evaluate to bool, got %s", ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("event: build filter program: %w", err)
	}

	return b.add(&subscription{program: program, handler: handler}), nil
}

// Publish delivers an event to every matching subscriber, synchronously
// and in no guaranteed order. Filter evaluation failures (for example, an
// expression touching a key the event does not carry) drop the delivery
// for that subscriber and are logged at debug level.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	subs := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		if s.kinds != nil {
			if _, ok := s.kinds[e.Kind()]; !ok {
				continue
			}
		}
		if s.program != nil {
			match, err := evalFilter(s.program, e)
			if err != nil {
				b.logger.Debug("event filter evaluation failed",
					"kind", e.Kind(),
					"error", err)
				continue
			}
			if !match {
				continue
			}
		}
		s.handler(e)
	}
}

func (b *Bus) add(sub *subscription) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

func (b *Bus) filterEnv() (*cel.Env, error) {
	b.envOnce.Do(func() {
		b.env, b.envErr = cel.NewEnv(
			cel.Variable("event", cel.MapType(cel.StringType, cel.DynType)),
		)
	})
	return b.env, b.envErr
}

func evalFilter(program cel.Program, e Event) (bool, error) {
	out, _, err := program.Eval(map[string]any{"event": e.Attributes()})
	if err != nil {
		return false, err
	}
	match, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("event: filter returned %T, want bool", out.Value())
	}
	return match, nil
}
