package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/devports/kdcdash/pkg/log"
	"github.com/devports/kdcdash/pkg/models"
)

var (
	// ErrBusy is returned when a project already has an action in flight
	ErrBusy = errors.New("action already in progress")
	// ErrUnknownVerb rejects verbs outside start, stop, restart and sync
	ErrUnknownVerb = errors.New("unknown action")
)

// Commander issues lifecycle commands to the process manager
type Commander interface {
	Action(ctx context.Context, id string, verb models.Verb) (models.ActionResult, error)
}

// Refresher pulls a fresh snapshot into the store
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Reader looks projects up in the store
type Reader interface {
	Get(id string) (models.Project, bool)
}

// Config wires a Reconciler
type Config struct {
	Commands  Commander
	Refresher Refresher
	Store     Reader
	// Scheduler defaults to RealScheduler
	Scheduler Scheduler

	InitialDelay time.Duration
	Interval     time.Duration
	MaxAttempts  int
}

// action is one busy marker. Its pointer identity is the generation of the
// marker: a loop only ever clears the marker it set.
type action struct {
	id       string
	verb     models.Verb
	attempts int
	started  time.Time
}

// Reconciler tracks at most one in-flight action per project and polls the
// store until the project reaches the state the action asked for, or the
// attempt bound runs out.
type Reconciler struct {
	ctx   context.Context
	cfg   Config
	sched Scheduler

	mu      sync.Mutex
	busy    map[string]*action
	subs    map[int]func(Event)
	nextSub int
}

// New creates a reconciler. Loops stop at their next step once ctx is done.
func New(ctx context.Context, cfg Config) *Reconciler {
	if cfg.Scheduler == nil {
		cfg.Scheduler = RealScheduler()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 10
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.InitialDelay < 0 {
		cfg.InitialDelay = 0
	}
	return &Reconciler{
		ctx:   ctx,
		cfg:   cfg,
		sched: cfg.Scheduler,
		busy:  make(map[string]*action),
		subs:  make(map[int]func(Event)),
	}
}

// Request marks id busy with verb and schedules the command. It returns
// ErrBusy, changing nothing, when id already has an action in flight.
func (r *Reconciler) Request(id string, verb models.Verb) error {
	if _, err := models.ParseVerb(string(verb)); err != nil {
		return fmt.Errorf("%w: %q", ErrUnknownVerb, verb)
	}
	a, ok := r.setBusy(id, verb)
	if !ok {
		return ErrBusy
	}
	log.Info("action started", "id", id, "verb", verb)
	r.emit(Event{Kind: EventStarted, ID: id, Verb: verb})
	r.sched.After(0, func() { r.issue(a) })
	return nil
}

// Busy returns the verb in flight for id
func (r *Reconciler) Busy(id string) (models.Verb, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.busy[id]
	if !ok {
		return "", false
	}
	return a.verb, true
}

// BusyMap returns a copy of every busy marker
func (r *Reconciler) BusyMap() map[string]models.Verb {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]models.Verb, len(r.busy))
	for id, a := range r.busy {
		out[id] = a.verb
	}
	return out
}

// InFlight lists the busy project ids in order
func (r *Reconciler) InFlight() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.busy))
	for id := range r.busy {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Subscribe registers fn for every event until cancel is called.
// fn runs on the goroutine that produced the event and must not block.
func (r *Reconciler) Subscribe(fn func(Event)) (cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := r.nextSub
	r.nextSub++
	r.subs[key] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, key)
	}
}

func (r *Reconciler) setBusy(id string, verb models.Verb) (*action, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.busy[id]; exists {
		return nil, false
	}
	a := &action{id: id, verb: verb, started: time.Now()}
	r.busy[id] = a
	return a, true
}

// clearBusy drops the marker only if it is still a's own
func (r *Reconciler) clearBusy(a *action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy[a.id] == a {
		delete(r.busy, a.id)
	}
}

func (r *Reconciler) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	r.mu.Lock()
	keys := make([]int, 0, len(r.subs))
	for k := range r.subs {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	fns := make([]func(Event), 0, len(keys))
	for _, k := range keys {
		fns = append(fns, r.subs[k])
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (r *Reconciler) cancelled(a *action) bool {
	err := r.ctx.Err()
	if err == nil {
		return false
	}
	r.finish(a, Event{Kind: EventCancelled, Err: err})
	return true
}

func (r *Reconciler) finish(a *action, ev Event) {
	r.clearBusy(a)
	ev.ID = a.id
	ev.Verb = a.verb
	if ev.Attempt == 0 {
		ev.Attempt = a.attempts
	}
	log.Info("action finished", "id", a.id, "verb", a.verb, "outcome", ev.Kind.String(),
		"attempts", a.attempts, "elapsed", time.Since(a.started).Round(time.Millisecond))
	r.emit(ev)
}

// issue sends the command. A command that never reached pmctl releases the
// marker at once and is never retried. Any answer, including a non-2xx one,
// starts polling after the initial delay.
func (r *Reconciler) issue(a *action) {
	if r.cancelled(a) {
		return
	}
	res, err := r.cfg.Commands.Action(r.ctx, a.id, a.verb)
	if err != nil {
		log.Warn("action command failed", "id", a.id, "verb", a.verb, "error", err)
		r.finish(a, Event{Kind: EventCommandFailed, Err: err})
		return
	}
	if a.verb != models.VerbSync && !res.Success {
		log.Warn("action command rejected", "id", a.id, "verb", a.verb, "message", res.Message)
	}
	if a.verb == models.VerbSync {
		log.Info("sync result", "id", a.id, "success", res.Success, "message", res.Message)
		r.emit(Event{Kind: EventSyncResult, ID: a.id, Verb: a.verb, Result: res})
	}
	r.sched.After(r.cfg.InitialDelay, func() { r.poll(a) })
}

// poll is one attempt: refresh, then re-read the project from the store and
// judge that fresh copy. Never judge a copy read before the refresh.
func (r *Reconciler) poll(a *action) {
	if r.cancelled(a) {
		return
	}
	a.attempts++
	attempt := a.attempts

	if err := r.cfg.Refresher.Refresh(r.ctx); err != nil {
		log.Debug("refresh during poll failed", "id", a.id, "attempt", attempt, "error", err)
	}

	p, ok := r.cfg.Store.Get(a.id)
	if !ok {
		r.finish(a, Event{Kind: EventAbsent, Attempt: attempt})
		return
	}
	if Converged(a.verb, p) {
		r.finish(a, Event{Kind: EventConverged, Attempt: attempt, Status: p.Status})
		return
	}
	if attempt >= r.cfg.MaxAttempts {
		r.finish(a, Event{Kind: EventExhausted, Attempt: attempt, Status: p.Status})
		return
	}
	r.emit(Event{Kind: EventPolled, ID: a.id, Verb: a.verb, Attempt: attempt, Status: p.Status})
	r.sched.After(r.cfg.Interval, func() { r.poll(a) })
}
