// Package dialogue drives request/response cycles of one conversation: it
// appends the user turn, calls the chat transport, appends the reply (or a
// fixed failure notice) and tells the presentation surface what to show.
package dialogue

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/antoniostano/chatdesk/internal/session"
)

// FailureNotice is the model turn appended when the transport fails.
const FailureNotice = "⚠️ I'm having trouble reaching the assistant. Please make sure the chat backend is running."

type State string

const (
	StateIdle    State = "idle"
	StatePending State = "pending"
)

// Outcome reports what a Submit call did.
type Outcome string

const (
	// OutcomeIgnored: the text was empty after trimming.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeRejected: a request was pending and the policy is reject, or the
	// queue was full.
	OutcomeRejected Outcome = "rejected"
	// OutcomeReplied: the transport answered and the reply was appended.
	OutcomeReplied Outcome = "replied"
	// OutcomeFailed: the transport failed and FailureNotice was appended.
	OutcomeFailed Outcome = "failed"
	// OutcomeStale: Clear ran while the request was pending; the result was discarded.
	OutcomeStale Outcome = "stale"
	// OutcomeDropped: a queued submission was dropped by Clear or its context.
	OutcomeDropped Outcome = "dropped"
)

type SubmitPolicy string

// DefaultMaxQueued bounds how many submissions may wait behind a pending
// request under PolicyQueue.
const DefaultMaxQueued = 8

const (
	PolicyReject SubmitPolicy = "reject"
	PolicyQueue  SubmitPolicy = "queue"
)

func ParseSubmitPolicy(raw string) (SubmitPolicy, error) {
	switch SubmitPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", PolicyReject:
		return PolicyReject, nil
	case PolicyQueue:
		return PolicyQueue, nil
	default:
		return "", errors.Errorf("unsupported submit policy %q (expected reject|queue)", raw)
	}
}

// Presenter receives render notifications. Methods are called with the
// controller's lock held, in the order the effects happen, and must not call
// back into the Controller.
type Presenter interface {
	Render(turn session.Turn)
	SetBusy(busy bool)
	ClearAll()
}

// Transport is the remote call that turns a message plus prior history into a reply.
type Transport interface {
	Reply(ctx context.Context, message string, history []session.Turn) (string, error)
}

// Hooks observe controller side effects. Nil fields are skipped.
type Hooks struct {
	OnTurn  func(turn session.Turn, synthetic bool)
	OnReply func(latency time.Duration, err error)
	OnClear func()
}

type waiter struct {
	ready   chan struct{}
	granted bool
}

type Controller struct {
	mu        sync.Mutex
	history   *session.History
	transport Transport
	presenter Presenter
	policy    SubmitPolicy
	hooks     Hooks
	logger    zerolog.Logger
	newID     func() string
	maxQueued int

	state      State
	generation uint64
	waiters    []*waiter
	grantee    *waiter
}

type Option func(*Controller)

func WithPolicy(p SubmitPolicy) Option {
	return func(c *Controller) { c.policy = p }
}

func WithHooks(h Hooks) Option {
	return func(c *Controller) { c.hooks = h }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMaxQueued sets the queue depth for PolicyQueue; n <= 0 keeps the default.
func WithMaxQueued(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxQueued = n
		}
	}
}

// WithIDGenerator overrides turn ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(c *Controller) { c.newID = fn }
}

func New(history *session.History, transport Transport, presenter Presenter, opts ...Option) *Controller {
	c := &Controller{
		history:   history,
		transport: transport,
		presenter: presenter,
		policy:    PolicyReject,
		logger:    log.Logger,
		newID:     uuid.NewString,
		maxQueued: DefaultMaxQueued,
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.history == nil {
		c.history = session.NewHistory()
	}
	if c.presenter == nil {
		c.presenter = NopPresenter{}
	}
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Turns returns the current transcript.
func (c *Controller) Turns() []session.Turn {
	return c.history.All()
}

func (c *Controller) Policy() SubmitPolicy { return c.policy }

// Submit runs one request/response cycle for raw and blocks until it resolves.
// Transport errors never escape: they become a FailureNotice turn.
func (c *Controller) Submit(ctx context.Context, raw string) Outcome {
	text := strings.TrimSpace(raw)
	if text == "" {
		return OutcomeIgnored
	}

	c.mu.Lock()
	if c.busyLocked() {
		if c.policy != PolicyQueue || len(c.waiters) >= c.maxQueued {
			c.mu.Unlock()
			return OutcomeRejected
		}
		w := &waiter{ready: make(chan struct{})}
		c.waiters = append(c.waiters, w)
		c.mu.Unlock()

		select {
		case <-w.ready:
			c.mu.Lock()
			if !w.granted {
				c.mu.Unlock()
				return OutcomeDropped
			}
			c.grantee = nil
		case <-ctx.Done():
			c.mu.Lock()
			if w.granted {
				w.granted = false
				c.grantee = nil
				c.handoffLocked()
			} else {
				c.removeWaiterLocked(w)
			}
			c.mu.Unlock()
			return OutcomeDropped
		}
	}

	// History as it stood before this submission.
	prior := c.history.All()
	userTurn := session.Turn{ID: c.newID(), Role: session.RoleUser, Text: text}
	c.history.Append(userTurn)
	c.state = StatePending
	gen := c.generation
	c.presenter.Render(userTurn)
	c.presenter.SetBusy(true)
	if c.hooks.OnTurn != nil {
		c.hooks.OnTurn(userTurn, false)
	}
	c.mu.Unlock()

	start := time.Now()
	reply, err := c.transport.Reply(ctx, text, prior)
	latency := time.Since(start)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hooks.OnReply != nil {
		c.hooks.OnReply(latency, err)
	}
	if gen != c.generation {
		c.logger.Debug().
			Dur("latency", latency).
			Msg("discarding reply for a cleared transcript")
		return OutcomeStale
	}

	outcome := OutcomeReplied
	synthetic := false
	if err != nil {
		c.logger.Warn().
			Err(err).
			Dur("latency", latency).
			Msg("chat transport failed, appending failure notice")
		reply = FailureNotice
		outcome = OutcomeFailed
		synthetic = true
	}

	modelTurn := session.Turn{ID: c.newID(), Role: session.RoleModel, Text: reply}
	c.history.Append(modelTurn)
	c.state = StateIdle
	c.presenter.SetBusy(false)
	c.presenter.Render(modelTurn)
	if c.hooks.OnTurn != nil {
		c.hooks.OnTurn(modelTurn, synthetic)
	}
	c.handoffLocked()
	return outcome
}

// Clear empties the transcript and returns to Idle from any state. A reply
// still in flight is discarded when it arrives; queued submissions are dropped.
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history.Reset()
	c.generation++
	wasPending := c.state == StatePending
	c.state = StateIdle

	for _, w := range c.waiters {
		close(w.ready)
	}
	c.waiters = nil
	if c.grantee != nil {
		c.grantee.granted = false
		c.grantee = nil
	}

	if wasPending {
		c.presenter.SetBusy(false)
	}
	c.presenter.ClearAll()
	if c.hooks.OnClear != nil {
		c.hooks.OnClear()
	}
}

func (c *Controller) busyLocked() bool {
	return c.state == StatePending || c.grantee != nil || len(c.waiters) > 0
}

// handoffLocked grants the next queued submission, if any. The grantee starts
// its cycle strictly after the current one went Idle.
func (c *Controller) handoffLocked() {
	if len(c.waiters) == 0 {
		return
	}
	w := c.waiters[0]
	c.waiters = c.waiters[1:]
	w.granted = true
	c.grantee = w
	close(w.ready)
}

func (c *Controller) removeWaiterLocked(target *waiter) {
	for i, w := range c.waiters {
		if w == target {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}
