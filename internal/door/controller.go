package door

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nerrad567/gray-logic-cloud/internal/particle"
)

// tickInterval is the control loop's base cadence. Poll tiers are evaluated
// against it, so intervals below one second are not meaningful.
const tickInterval = time.Second

// Logger is the minimal logging interface the door package depends on.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Dispatcher is the asynchronous call surface the controller drives.
// Satisfied by *particle.Dispatcher.
type Dispatcher interface {
	CallFunctionAsync(name, arg string, cb particle.FunctionCallback)
	GetVariableAsync(name string, cb particle.VariableCallback)
}

// Publisher receives status snapshots on every state change. Implementations
// (MQTT state topic, WebSocket hub) are invoked inside the synchronizer
// scope and must not call back into the controller or dispatcher.
type Publisher interface {
	PublishStatus(s Status)
}

// Recorder receives door state telemetry. Implemented by the InfluxDB
// client; a nil Recorder disables recording.
type Recorder interface {
	RecordDoorState(device, state string, obstructed bool)
}

// Config parameterises a Controller.
type Config struct {
	// DeviceName identifies the door in topics, telemetry, and the API.
	DeviceName string

	// FunctionName is the cloud function that commands the actuator.
	FunctionName string

	// VariableName is the cloud variable that reports the observed state.
	VariableName string

	// PollInterval is the background poll cadence, active unconditionally to
	// catch externally triggered changes.
	PollInterval time.Duration

	// FastPollInterval is the accelerated cadence while a command awaits
	// confirmation.
	FastPollInterval time.Duration

	// FastPollWindow bounds how long the accelerated tier stays active after
	// a command, even absent confirmation.
	FastPollWindow time.Duration

	// ObstructionWindow is how long an unconfirmed command may remain in
	// flight before the door is declared obstructed.
	ObstructionWindow time.Duration
}

// Controller tracks a garage door whose actuator lives behind the cloud API.
//
// State is never taken from command acknowledgements: a successful setDoor
// call proves the command was accepted, not that the door finished moving.
// The observed doorState variable is polled on two tiers (accelerated while
// a command is pending, background always) and is the only source of state
// transitions.
//
// All mutable fields are guarded by the synchronizer scope shared with the
// dispatcher, so poll and command callbacks (delivered inside the scope)
// mutate them directly, while external entry points acquire the scope first.
type Controller struct {
	cfg        Config
	dispatcher Dispatcher
	sync       particle.Synchronizer
	clock      clock.Clock
	publisher  Publisher
	recorder   Recorder
	logger     Logger

	// Guarded by sync.
	current      State
	previous     State
	target       State
	obstructed   bool
	inFlight     bool
	pollPending  bool
	cmdSentAt    time.Time
	lastPoll     time.Time
	lastFastPoll time.Time
}

// Deps holds collaborator wiring for NewController.
type Deps struct {
	// Dispatcher submits the cloud calls. Required.
	Dispatcher Dispatcher

	// Sync is the scope shared with the dispatcher's callback deliveries.
	// Required, and must be the same instance the dispatcher uses.
	Sync particle.Synchronizer

	// Clock drives the control loop. Nil selects the real clock.
	Clock clock.Clock

	// Publisher receives status snapshots. Optional.
	Publisher Publisher

	// Recorder receives state telemetry. Optional.
	Recorder Recorder

	// Logger receives diagnostics. Optional.
	Logger Logger
}

// NewController creates a door controller. The door is assumed Closed until
// the first poll reports otherwise.
func NewController(cfg Config, deps Deps) *Controller {
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Controller{
		cfg:        cfg,
		dispatcher: deps.Dispatcher,
		sync:       deps.Sync,
		clock:      clk,
		publisher:  deps.Publisher,
		recorder:   deps.Recorder,
		logger:     logger,
		current:    StateClosed,
		previous:   StateClosed,
		target:     StateClosed,
	}
}

// Run drives the control loop until ctx is cancelled. Poll tiers are
// evaluated once per tick; at most one poll is outstanding at a time.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("door controller started",
		"device", c.cfg.DeviceName,
		"poll_interval", c.cfg.PollInterval,
		"fast_poll_interval", c.cfg.FastPollInterval,
	)

	ticker := c.clock.Ticker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("door controller stopped", "device", c.cfg.DeviceName)
			return nil
		case <-ticker.C:
			c.tick()
		}
	}
}

// RequestTarget commands the door toward a terminal state.
//
// While a command is in flight new requests are rejected, and the visible
// target keeps the in-flight value so a rejected request cannot appear
// accepted. An accepted request clears the obstructed flag (each attempt
// gets a fresh verdict) and dispatches setDoor; the transitional state is
// adopted immediately, confirmation comes from polls.
//
// Callers must not hold the synchronizer scope.
//
// Returns:
//   - error: ErrInvalidTarget, ErrCommandInFlight, or nil (nil means
//     dispatched, not confirmed)
func (c *Controller) RequestTarget(target State) error {
	if !target.Terminal() {
		return ErrInvalidTarget
	}

	c.sync.Enter()
	if c.inFlight {
		c.sync.Exit()
		c.logger.Warn("door command rejected",
			"device", c.cfg.DeviceName, "target", target.String(), "error", ErrCommandInFlight)
		return ErrCommandInFlight
	}

	now := c.clock.Now()
	c.previous = c.current
	if target == StateOpen {
		c.current = StateOpening
	} else {
		c.current = StateClosing
	}
	c.target = target
	c.inFlight = true
	c.obstructed = false
	c.cmdSentAt = now
	c.lastFastPoll = now
	c.notifyLocked()
	c.sync.Exit()

	c.logger.Info("door command dispatched",
		"device", c.cfg.DeviceName, "target", target.String())

	// Dispatched outside the scope: a synchronous pre-check failure delivers
	// the callback immediately, and that delivery enters the scope.
	c.dispatcher.CallFunctionAsync(c.cfg.FunctionName, commandArg(target), c.onCommandResult)
	return nil
}

// RequestTargetByName parses a command payload (MQTT or API) and requests it.
func (c *Controller) RequestTargetByName(value string) error {
	target, err := ParseState(value)
	if err != nil {
		return err
	}
	if !target.Terminal() {
		return ErrInvalidTarget
	}
	return c.RequestTarget(target)
}

// Status returns a snapshot of the controller.
// Callers must not hold the synchronizer scope.
func (c *Controller) Status() Status {
	c.sync.Enter()
	defer c.sync.Exit()
	return c.statusLocked()
}

// commandArg maps a terminal target to the setDoor argument.
func commandArg(target State) string {
	if target == StateOpen {
		return "open"
	}
	return "close"
}

// onCommandResult handles the setDoor acknowledgement. Runs inside the
// synchronizer scope (dispatcher delivery contract).
func (c *Controller) onCommandResult(result int, ok bool) {
	if ok {
		// Bookkeeping only. The acknowledgement confirms acceptance; the
		// transition completes when a poll observes the target.
		c.logger.Debug("door command accepted",
			"device", c.cfg.DeviceName, "return_value", result)
		return
	}

	c.logger.Error("door command failed, reverting",
		"device", c.cfg.DeviceName,
		"target", c.target.String(),
		"reverted_to", c.previous.String(),
	)
	c.current = c.previous
	c.target = c.previous
	c.inFlight = false
	c.notifyLocked()
}

// tick evaluates the poll tiers and dispatches at most one variable read.
func (c *Controller) tick() {
	now := c.clock.Now()

	c.sync.Enter()
	poll := false
	if !c.pollPending {
		switch {
		case c.inFlight &&
			now.Sub(c.cmdSentAt) <= c.cfg.FastPollWindow &&
			now.Sub(c.lastFastPoll) >= c.cfg.FastPollInterval:
			poll = true
			c.lastFastPoll = now
		case c.lastPoll.IsZero(), now.Sub(c.lastPoll) >= c.cfg.PollInterval:
			poll = true
		}
		if poll {
			c.pollPending = true
			c.lastPoll = now
		}
	}
	c.sync.Exit()

	if poll {
		c.dispatcher.GetVariableAsync(c.cfg.VariableName, c.onPollResult)
	}
}

// onPollResult handles an observed door state. Runs inside the synchronizer
// scope (dispatcher delivery contract).
func (c *Controller) onPollResult(value string, ok bool) {
	c.pollPending = false
	now := c.clock.Now()

	if !ok {
		// No observation. An expired in-flight command still cannot be left
		// pending forever; fall back to the pre-command state.
		if c.inFlight && now.Sub(c.cmdSentAt) > c.cfg.ObstructionWindow {
			c.logger.Error("door command expired without confirmation",
				"device", c.cfg.DeviceName, "target", c.target.String())
			c.obstructed = true
			c.current = c.previous
			c.target = c.previous
			c.inFlight = false
			c.notifyLocked()
		}
		return
	}

	observed, err := ParseState(value)
	if err != nil {
		c.logger.Warn("door poll returned unknown state",
			"device", c.cfg.DeviceName, "value", value)
		return
	}

	switch {
	case c.inFlight && observed == c.target:
		// Confirmation: the actuator reached the commanded target.
		c.logger.Info("door reached target",
			"device", c.cfg.DeviceName, "state", observed.String())
		c.current = observed
		c.inFlight = false
		c.obstructed = false
		c.notifyLocked()

	case !c.inFlight && observed.Terminal() && observed != c.current:
		// Spontaneous external change: adopt it and mirror the target so the
		// visible target view does not freeze on a stale value.
		c.logger.Info("door changed externally",
			"device", c.cfg.DeviceName, "state", observed.String())
		c.current = observed
		c.target = observed
		c.notifyLocked()

	case c.inFlight && now.Sub(c.cmdSentAt) > c.cfg.ObstructionWindow:
		// The command never produced the target within the window.
		c.logger.Error("door obstructed",
			"device", c.cfg.DeviceName,
			"target", c.target.String(),
			"observed", observed.String(),
		)
		c.obstructed = true
		c.current = observed
		c.target = observed
		c.inFlight = false
		c.notifyLocked()
	}
}

// statusLocked builds a snapshot. Caller holds the scope.
func (c *Controller) statusLocked() Status {
	return Status{
		Device:     c.cfg.DeviceName,
		Current:    c.current,
		Target:     c.target,
		Obstructed: c.obstructed,
		InFlight:   c.inFlight,
		LastPoll:   c.lastPoll,
	}
}

// notifyLocked pushes the current snapshot to the publisher and recorder.
// Caller holds the scope.
func (c *Controller) notifyLocked() {
	s := c.statusLocked()
	if c.publisher != nil {
		c.publisher.PublishStatus(s)
	}
	if c.recorder != nil {
		c.recorder.RecordDoorState(s.Device, s.Current.String(), s.Obstructed)
	}
}
