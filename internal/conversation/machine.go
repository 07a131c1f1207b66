package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultTimeout is how long a flow waits for the user's next message
const DefaultTimeout = 300 * time.Second

// ExpireFunc is called once for every flow that runs past its deadline
type ExpireFunc func(ctx context.Context, flow Flow)

// Option configures a Machine
type Option func(*Machine)

// WithTimeout sets the per-step waiting window
func WithTimeout(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithClock replaces time.Now for deadline checks
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

// WithExpireHook sets the timeout side effect
func WithExpireHook(fn ExpireFunc) Option {
	return func(m *Machine) {
		m.onExpire = fn
	}
}

// WithContext sets the context used by timer-driven expiry
func WithContext(ctx context.Context) Option {
	return func(m *Machine) {
		m.ctx = ctx
	}
}

// Machine owns the per-user conversation state
type Machine struct {
	steps    Steps
	timeout  time.Duration
	now      func() time.Time
	onExpire ExpireFunc
	ctx      context.Context
	logger   *zap.Logger

	mu    sync.Mutex
	slots map[int64]*slot
}

// slot serializes everything that touches one user's flow
type slot struct {
	mu   sync.Mutex
	refs int // guarded by Machine.mu
	flow *activeFlow
}

type activeFlow struct {
	Flow
	timer  *time.Timer
	handle *Handle
}

// NewMachine creates a state machine dispatching to steps.
// Every phase must have a step.
func NewMachine(steps Steps, logger *zap.Logger, opts ...Option) (*Machine, error) {
	for _, p := range Phases() {
		if steps[p] == nil {
			return nil, fmt.Errorf("no step registered for phase %s", p)
		}
	}

	m := &Machine{
		steps:   steps,
		timeout: DefaultTimeout,
		now:     time.Now,
		ctx:     context.Background(),
		logger:  logger,
		slots:   make(map[int64]*slot),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Timeout returns the per-step waiting window
func (m *Machine) Timeout() time.Duration {
	return m.timeout
}

func (m *Machine) acquire(user int64) *slot {
	m.mu.Lock()
	s, ok := m.slots[user]
	if !ok {
		s = &slot{}
		m.slots[user] = s
	}
	s.refs++
	m.mu.Unlock()

	s.mu.Lock()
	return s
}

func (m *Machine) release(user int64, s *slot) {
	idle := s.flow == nil
	s.mu.Unlock()

	m.mu.Lock()
	s.refs--
	if s.refs == 0 && idle {
		delete(m.slots, user)
	}
	m.mu.Unlock()
}

// remove drops the slot's flow and resolves its handle. Caller holds s.mu.
func (s *slot) remove(o Outcome) Flow {
	f := s.flow
	s.flow = nil
	f.timer.Stop()
	f.handle.resolve(o)
	return f.Flow
}

// expiredLocked removes the flow if its deadline has passed. Caller holds s.mu.
func (m *Machine) expiredLocked(s *slot, now time.Time) (Flow, bool) {
	if s.flow == nil || now.Before(s.flow.Deadline) {
		return Flow{}, false
	}
	return s.remove(Expired), true
}

func (m *Machine) notifyExpired(ctx context.Context, f Flow) {
	m.logger.Info("Flow expired",
		zap.Int64("user_id", f.User),
		zap.String("kind", f.Kind.String()),
		zap.String("phase", f.Phase.String()),
	)
	if m.onExpire != nil {
		m.onExpire(ctx, f)
	}
}

// Begin installs a new flow for user. The check and the install happen
// under the user's lock, so of two racing calls exactly one succeeds.
func (m *Machine) Begin(user int64, kind Kind, params Params) (*Handle, error) {
	phase, ok := initialPhase(kind, params.Setting)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownFlow, kind, params.Setting)
	}

	now := m.now()
	s := m.acquire(user)
	stale, expired := m.expiredLocked(s, now)
	if s.flow != nil {
		active := s.flow.Kind
		m.release(user, s)
		return nil, &AlreadyActiveError{User: user, Active: active}
	}

	f := Flow{
		ID:        uuid.New(),
		User:      user,
		Chat:      params.Chat,
		Kind:      kind,
		Setting:   params.Setting,
		Phase:     phase,
		StartedAt: now,
		Deadline:  now.Add(m.timeout),
	}
	af := &activeFlow{Flow: f, handle: newHandle(f)}
	af.timer = time.AfterFunc(m.timeout, func() { m.expireFlow(user, f.ID) })
	s.flow = af
	m.release(user, s)

	if expired {
		m.notifyExpired(m.ctx, stale)
	}

	m.logger.Debug("Flow started",
		zap.Int64("user_id", user),
		zap.String("kind", kind.String()),
		zap.String("flow_id", f.ID.String()),
	)
	return af.handle, nil
}

// Route hands in to the step of the user's active flow and applies the
// resulting transition. With no active flow, or input from a chat other
// than the one the flow waits on, it returns NoActiveFlow and leaves the
// state untouched. Input with a zero Chat matches any flow.
func (m *Machine) Route(ctx context.Context, user int64, in Input) (Outcome, error) {
	s := m.acquire(user)
	if s.flow == nil || (in.Chat != 0 && in.Chat != s.flow.Chat) {
		m.release(user, s)
		return NoActiveFlow, nil
	}

	if stale, expired := m.expiredLocked(s, m.now()); expired {
		m.release(user, s)
		m.notifyExpired(ctx, stale)
		return Expired, nil
	}

	snapshot := s.flow.Flow
	step, err := m.runStep(ctx, snapshot, in)
	outcome := m.apply(s, step)
	m.release(user, s)

	m.logger.Debug("Flow input routed",
		zap.Int64("user_id", user),
		zap.String("kind", snapshot.Kind.String()),
		zap.String("phase", snapshot.Phase.String()),
		zap.String("outcome", outcome.String()),
	)
	return outcome, err
}

// runStep calls the phase's step, turning a panic into an abort
func (m *Machine) runStep(ctx context.Context, f Flow, in Input) (step Step, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Flow step panicked",
				zap.Int64("user_id", f.User),
				zap.String("phase", f.Phase.String()),
				zap.Any("panic", r),
			)
			step = Abort("internal error")
			err = fmt.Errorf("step %s panicked: %v", f.Phase, r)
		}
	}()
	return m.steps[f.Phase](ctx, f, in), nil
}

// apply performs a step's transition. Caller holds s.mu.
func (m *Machine) apply(s *slot, step Step) Outcome {
	switch step.Action {
	case ActionAdvance:
		if step.Phase < 0 || step.Phase >= phaseCount {
			s.remove(Aborted)
			return Aborted
		}
		s.flow.Phase = step.Phase
		if step.Credentials != nil {
			s.flow.Credentials = step.Credentials
		}
		s.flow.Deadline = m.now().Add(m.timeout)
		s.flow.timer.Reset(m.timeout)
		return Advanced
	case ActionComplete:
		s.remove(Completed)
		return Completed
	default:
		if step.Reason != "" {
			m.logger.Info("Flow aborted",
				zap.Int64("user_id", s.flow.User),
				zap.String("kind", s.flow.Kind.String()),
				zap.String("reason", step.Reason),
			)
		}
		s.remove(Aborted)
		return Aborted
	}
}

// Cancel removes the user's active flow and reports whether one existed
func (m *Machine) Cancel(user int64) bool {
	s := m.acquire(user)
	defer m.release(user, s)

	if s.flow == nil {
		return false
	}
	f := s.remove(Cancelled)
	m.logger.Info("Flow cancelled",
		zap.Int64("user_id", user),
		zap.String("kind", f.Kind.String()),
	)
	return true
}

// Active returns a snapshot of the user's active flow
func (m *Machine) Active(user int64) (Flow, bool) {
	s := m.acquire(user)
	defer m.release(user, s)

	if s.flow == nil || !m.now().Before(s.flow.Deadline) {
		return Flow{}, false
	}
	return s.flow.Flow, true
}

// ExpireStale removes every flow whose deadline is not after now and
// returns how many were removed
func (m *Machine) ExpireStale(now time.Time) int {
	m.mu.Lock()
	users := make([]int64, 0, len(m.slots))
	for user := range m.slots {
		users = append(users, user)
	}
	m.mu.Unlock()

	var expired []Flow
	for _, user := range users {
		s := m.acquire(user)
		if f, ok := m.expiredLocked(s, now); ok {
			expired = append(expired, f)
		}
		m.release(user, s)
	}

	for _, f := range expired {
		m.notifyExpired(m.ctx, f)
	}
	return len(expired)
}

// expireFlow is the per-flow timer callback. It only acts if the same
// flow instance is still installed and its deadline, which an advance may
// have pushed back, has passed.
func (m *Machine) expireFlow(user int64, id uuid.UUID) {
	s := m.acquire(user)
	if s.flow == nil || s.flow.ID != id {
		m.release(user, s)
		return
	}
	f, ok := m.expiredLocked(s, m.now())
	m.release(user, s)
	if !ok {
		return
	}

	m.notifyExpired(m.ctx, f)
}

// Close cancels every active flow without notifying users
func (m *Machine) Close() {
	m.mu.Lock()
	users := make([]int64, 0, len(m.slots))
	for user := range m.slots {
		users = append(users, user)
	}
	m.mu.Unlock()

	for _, user := range users {
		s := m.acquire(user)
		if s.flow != nil {
			s.remove(Cancelled)
		}
		m.release(user, s)
	}
}
