package preview

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/charsheet/internal/services/sheet/domain/sheet"
)

const tracerName = "github.com/louisbranch/charsheet/internal/services/sheet/domain/preview"

// ErrLoopStopped is returned when submitting to a stopped loop.
var ErrLoopStopped = errors.New("preview loop stopped")

// EventKind identifies a user interaction.
type EventKind int

const (
	EventFocus EventKind = iota + 1
	EventInput
	EventBlur
	EventKey
	EventOutside
	EventConfirm
	EventCancel
	EventLedgerInput
	EventSnapshot
)

var eventNames = map[EventKind]string{
	EventFocus:       "focus",
	EventInput:       "input",
	EventBlur:        "blur",
	EventKey:         "key",
	EventOutside:     "outside",
	EventConfirm:     "confirm",
	EventCancel:      "cancel",
	EventLedgerInput: "ledger_input",
	EventSnapshot:    "snapshot",
}

// String returns the event name.
func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "unknown"
}

// EventKindFromName parses an event name.
func EventKindFromName(name string) (EventKind, bool) {
	for kind, n := range eventNames {
		if n == name {
			return kind, true
		}
	}
	return 0, false
}

// Event is one interaction submitted to a Loop.
type Event struct {
	Kind    EventKind
	FieldID string
	Text    string
	Key     string
}

// Result is what a Loop reports after handling an event.
type Result struct {
	Event      Event
	Update     Update
	Projection *Projection
	// Snapshot is set after commits, ledger edits and snapshot requests.
	Snapshot *sheet.Snapshot
	Err      error
}

// Sink receives loop results, on the loop goroutine.
type Sink func(ctx context.Context, result Result)

// queued is an event plus the span context of whoever submitted it.
type queued struct {
	ev     Event
	parent trace.SpanContext
}

type firedEdit struct {
	fieldID string
	gen     uint64
}

// Loop serializes interactions with a Session. Typing is debounced per field:
// only the latest text within the window is priced, and cancellation always
// wins over a debounced edit that has not run yet.
type Loop struct {
	session  *Session
	window   time.Duration
	debounce *Debouncer
	sink     Sink
	tracer   trace.Tracer

	events   chan queued
	fired    chan firedEdit
	stop     chan struct{}
	stopOnce sync.Once

	latest map[string]string
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithTracer sets the tracer used for per-event spans.
func WithTracer(tracer trace.Tracer) LoopOption {
	return func(l *Loop) {
		if tracer != nil {
			l.tracer = tracer
		}
	}
}

// NewLoop creates a loop over session. A zero window prices every keystroke.
func NewLoop(session *Session, window time.Duration, sink Sink, opts ...LoopOption) *Loop {
	l := &Loop{
		session:  session,
		window:   window,
		debounce: NewDebouncer(window),
		sink:     sink,
		tracer:   otel.Tracer(tracerName),
		events:   make(chan queued),
		fired:    make(chan firedEdit),
		stop:     make(chan struct{}),
		latest:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Submit enqueues an event, blocking until the loop accepts it. The span
// recorded while the event is handled is a child of the span in ctx.
func (l *Loop) Submit(ctx context.Context, ev Event) error {
	select {
	case l.events <- queued{ev: ev, parent: trace.SpanContextFromContext(ctx)}:
		return nil
	case <-l.stop:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop ends Run and drops pending debounced edits.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
}

// Run handles events until ctx is done or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	defer l.Stop()
	defer l.debounce.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stop:
			return nil
		case q := <-l.events:
			l.handle(withParent(ctx, q.parent), q.ev)
		case f := <-l.fired:
			l.handleFired(ctx, f)
		}
	}
}

func withParent(ctx context.Context, parent trace.SpanContext) context.Context {
	if !parent.IsValid() {
		return ctx
	}
	return trace.ContextWithRemoteSpanContext(ctx, parent)
}

func (l *Loop) startSpan(ctx context.Context, ev Event, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("sheet.id", l.session.Sheet().ID()),
		attribute.String("sheet.field_id", ev.FieldID),
	)
	return l.tracer.Start(ctx, "sheet.event."+ev.Kind.String(), trace.WithAttributes(attrs...))
}

func (l *Loop) handle(ctx context.Context, ev Event) {
	ctx, span := l.startSpan(ctx, ev)
	defer span.End()

	var (
		update Update
		err    error
	)
	switch ev.Kind {
	case EventFocus:
		l.dropOthers(ev.FieldID)
		update, err = l.session.BeginEdit(ev.FieldID)
	case EventInput:
		if l.window <= 0 {
			update, err = l.session.Edit(ev.FieldID, ev.Text)
			break
		}
		l.latest[ev.FieldID] = ev.Text
		fieldID := ev.FieldID
		l.debounce.Schedule(fieldID, func(gen uint64) {
			select {
			case l.fired <- firedEdit{fieldID: fieldID, gen: gen}:
			case <-l.stop:
			}
		})
		return
	case EventBlur:
		l.drop(ev.FieldID)
		update, err = l.session.Blur(ev.FieldID)
	case EventKey:
		if ev.Key == KeyEnter {
			if flushErr := l.flush(ev.FieldID); flushErr != nil {
				l.emit(ctx, ev, update, flushErr)
				return
			}
		} else if ev.Key == KeyEscape {
			l.drop(ev.FieldID)
		}
		update, err = l.session.Key(ctx, ev.FieldID, ev.Key)
	case EventOutside:
		l.dropOthers("")
		update, err = l.session.OutsideInteraction()
	case EventConfirm:
		if pending, ok := l.session.Pending(); ok {
			if flushErr := l.flush(pending.FieldID); flushErr != nil {
				l.emit(ctx, ev, update, flushErr)
				return
			}
		}
		update, err = l.session.Confirm(ctx)
	case EventCancel:
		l.drop(ev.FieldID)
		update, err = l.session.Cancel(ev.FieldID)
	case EventLedgerInput:
		l.dropOthers("")
		update, err = l.session.EditLedger(ctx, ev.FieldID, ev.Text)
	case EventSnapshot:
		update = l.session.withState(Update{})
	default:
		return
	}
	l.emit(ctx, ev, update, err)
}

func (l *Loop) handleFired(ctx context.Context, f firedEdit) {
	if !l.debounce.Current(f.fieldID, f.gen) {
		return
	}
	l.debounce.Settle(f.fieldID, f.gen)
	text, ok := l.latest[f.fieldID]
	if !ok {
		return
	}
	delete(l.latest, f.fieldID)
	ev := Event{Kind: EventInput, FieldID: f.fieldID, Text: text}
	ctx, span := l.startSpan(ctx, ev, attribute.Bool("sheet.debounced", true))
	defer span.End()
	update, err := l.session.Edit(f.fieldID, text)
	l.emit(ctx, ev, update, err)
}

// flush prices a debounced edit for fieldID right away.
func (l *Loop) flush(fieldID string) error {
	text, ok := l.latest[fieldID]
	if !ok {
		return nil
	}
	l.drop(fieldID)
	_, err := l.session.Edit(fieldID, text)
	return err
}

func (l *Loop) drop(fieldID string) {
	if _, ok := l.latest[fieldID]; !ok {
		return
	}
	l.debounce.Cancel(fieldID)
	delete(l.latest, fieldID)
}

// dropOthers discards debounced edits of every field except keep.
func (l *Loop) dropOthers(keep string) {
	for fieldID := range l.latest {
		if fieldID != keep {
			l.drop(fieldID)
		}
	}
}

func (l *Loop) emit(ctx context.Context, ev Event, update Update, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if update.Pending != nil && update.Pending.Err != nil {
		span.SetAttributes(attribute.String("sheet.preview.error", update.Pending.Err.Error()))
	}
	if l.sink == nil {
		return
	}
	result := Result{Event: ev, Update: update, Err: err}
	if projection, ok := l.session.Projection(); ok {
		result.Projection = &projection
	}
	if ev.Kind == EventSnapshot || update.Committed != nil || update.Ledger != nil {
		snap := l.session.Sheet().Snapshot()
		result.Snapshot = &snap
	}
	l.sink(ctx, result)
}
