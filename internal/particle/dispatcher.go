package particle

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// Response fields extracted from cloud API envelopes.
const (
	fieldReturnValue = "return_value"
	fieldResult      = "result"
	fieldOnline      = "online"
)

// FunctionCallback receives the outcome of an asynchronous function call.
// On failure result is -1 and ok is false.
type FunctionCallback func(result int, ok bool)

// VariableCallback receives the outcome of an asynchronous variable read.
// On failure value is empty and ok is false.
type VariableCallback func(value string, ok bool)

// Recorder receives per-call telemetry. Implemented by the InfluxDB client;
// a nil Recorder disables recording.
type Recorder interface {
	RecordCall(kind, name string, success bool, attempts int, duration time.Duration)
}

// DispatcherConfig parameterises a Dispatcher.
type DispatcherConfig struct {
	// BaseURL is the cloud API base URL (no trailing slash).
	BaseURL string

	// RetryCount is the number of retries beyond the first attempt for
	// function calls that time out. Variable reads never retry.
	RetryCount int

	// RetryDelay is the fixed pause between retry attempts. The delay blocks
	// only the worker goroutine, never the submitter.
	RetryDelay time.Duration

	// MaxInFlight bounds concurrent workers. Submissions past the bound fail
	// synchronously instead of queueing.
	MaxInFlight int

	// NameLimit bounds function and variable name lengths.
	NameLimit int

	// ArgLimit bounds function argument lengths.
	ArgLimit int

	// DataLimit bounds extracted variable value lengths.
	DataLimit int
}

// Dispatcher turns blocking cloud API exchanges into asynchronous calls with
// exactly-once callback delivery.
//
// Submission runs synchronous pre-checks (name length, argument length,
// credentials, throttle, worker admission); any failure delivers the
// callback immediately with ok=false and spawns nothing. Admitted calls move
// their request snapshot into a one-shot worker goroutine that performs the
// exchange, applies the retry policy, extracts the result field, and
// delivers the callback from within the Synchronizer scope.
//
// There is no cancellation: once admitted, a call runs to completion or
// failure, bounded by the transport timeout and the retry count.
//
// Thread Safety: all methods are safe for concurrent use. Callers must not
// hold the Synchronizer scope while submitting.
type Dispatcher struct {
	cfg      DispatcherConfig
	client   RemoteClient
	throttle *Throttle
	sync     Synchronizer
	clock    clock.Clock
	recorder Recorder
	logger   Logger

	credsMu sync.RWMutex
	creds   Credentials

	// slots is the worker admission semaphore. A buffered channel rather
	// than a pool: workers are one-shot, only their count is bounded.
	slots chan struct{}
	wg    sync.WaitGroup
}

// DispatcherDeps holds collaborator wiring for NewDispatcher.
type DispatcherDeps struct {
	// Client performs the blocking exchanges. Required.
	Client RemoteClient

	// Throttle enforces per-endpoint rate limits. Required.
	Throttle *Throttle

	// Sync brackets callback deliveries. Required.
	Sync Synchronizer

	// Clock supplies time for retry delays. Nil selects the real clock.
	Clock clock.Clock

	// Recorder receives per-call telemetry. Optional.
	Recorder Recorder

	// Logger receives diagnostics. Optional.
	Logger Logger
}

// NewDispatcher creates a dispatcher. Credentials are supplied separately
// via SetCredentials once loaded or validated.
func NewDispatcher(cfg DispatcherConfig, deps DispatcherDeps) *Dispatcher {
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Dispatcher{
		cfg:      cfg,
		client:   deps.Client,
		throttle: deps.Throttle,
		sync:     deps.Sync,
		clock:    clk,
		recorder: deps.Recorder,
		logger:   logger,
		slots:    make(chan struct{}, cfg.MaxInFlight),
	}
}

// SetCredentials installs the credentials used for subsequent calls.
// In-flight workers keep the snapshot they were admitted with.
func (d *Dispatcher) SetCredentials(creds Credentials) {
	d.credsMu.Lock()
	d.creds = creds
	d.credsMu.Unlock()
}

// ClearCredentials removes the installed credentials. Subsequent submissions
// fail with the not-configured class until new credentials are set.
func (d *Dispatcher) ClearCredentials() {
	d.SetCredentials(Credentials{})
}

// Configured reports whether credentials are installed.
func (d *Dispatcher) Configured() bool {
	d.credsMu.RLock()
	defer d.credsMu.RUnlock()
	return d.creds.Configured()
}

// ThrottleStats exposes the throttle snapshot for the diagnostics API.
func (d *Dispatcher) ThrottleStats() ThrottleStats {
	return d.throttle.Stats()
}

// Close waits for all in-flight workers to finish. No new submissions should
// be made after Close.
func (d *Dispatcher) Close() {
	d.wg.Wait()
}

// callRequest is the immutable snapshot owned by one worker. Built on the
// submitter's goroutine, moved into the worker's closure, and never shared:
// release is exactly-once by construction.
type callRequest struct {
	id    string
	creds Credentials
	kind  EndpointKind
	name  string
	arg   string
}

// CallFunctionAsync invokes a cloud function without blocking the caller.
//
// The callback fires exactly once on every path: synchronously on pre-check
// failure (oversized name or argument, missing credentials, throttle denial,
// saturation), asynchronously after the exchange otherwise. Asynchronous and
// synchronous deliveries alike run inside the Synchronizer scope.
func (d *Dispatcher) CallFunctionAsync(name, arg string, cb FunctionCallback) {
	fail := func() {
		d.deliver(func() { cb(-1, false) })
	}

	req, ok := d.admit(EndpointFunction, name, arg, fail)
	if !ok {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		started := d.clock.Now()
		result, success, attempts := d.executeFunction(req)
		<-d.slots
		d.record(req, success, attempts, d.clock.Since(started))
		d.deliver(func() { cb(result, success) })
	}()
}

// GetVariableAsync reads a cloud variable without blocking the caller.
// Delivery semantics match CallFunctionAsync; variable reads never retry.
func (d *Dispatcher) GetVariableAsync(name string, cb VariableCallback) {
	fail := func() {
		d.deliver(func() { cb("", false) })
	}

	req, ok := d.admit(EndpointVariable, name, "", fail)
	if !ok {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		started := d.clock.Now()
		value, success := d.executeVariable(req)
		<-d.slots
		d.record(req, success, 1, d.clock.Since(started))
		d.deliver(func() { cb(value, success) })
	}()
}

// admit runs the synchronous pre-checks and claims a worker slot. On any
// failure it invokes fail (which delivers the callback) and returns ok=false
// with no slot held.
func (d *Dispatcher) admit(kind EndpointKind, name, arg string, fail func()) (callRequest, bool) {
	if len(name) > d.cfg.NameLimit {
		d.logger.Error("cloud call rejected", "kind", string(kind), "error", ErrNameTooLong, "length", len(name))
		fail()
		return callRequest{}, false
	}

	if kind == EndpointFunction && len(arg) > d.cfg.ArgLimit {
		d.logger.Error("cloud call rejected", "kind", string(kind), "name", name, "error", ErrArgumentTooLong, "length", len(arg))
		fail()
		return callRequest{}, false
	}

	d.credsMu.RLock()
	creds := d.creds
	d.credsMu.RUnlock()
	if !creds.Configured() {
		d.logger.Error("cloud call rejected", "kind", string(kind), "name", name, "error", ErrNotConfigured)
		fail()
		return callRequest{}, false
	}

	if !d.throttle.Check(kind, name) {
		d.logger.Debug("cloud call rejected", "kind", string(kind), "name", name, "error", ErrThrottled)
		fail()
		return callRequest{}, false
	}

	select {
	case d.slots <- struct{}{}:
	default:
		d.logger.Error("cloud call rejected", "kind", string(kind), "name", name, "error", ErrSaturated, "max_in_flight", d.cfg.MaxInFlight)
		fail()
		return callRequest{}, false
	}

	return callRequest{
		id:    uuid.NewString(),
		creds: creds,
		kind:  kind,
		name:  name,
		arg:   arg,
	}, true
}

// deliver invokes fn inside the Synchronizer scope. Exit is guaranteed even
// if the callback panics.
func (d *Dispatcher) deliver(fn func()) {
	d.sync.Enter()
	defer d.sync.Exit()
	fn()
}

// record emits per-call telemetry if a recorder is wired.
func (d *Dispatcher) record(req callRequest, success bool, attempts int, duration time.Duration) {
	if d.recorder == nil {
		return
	}
	d.recorder.RecordCall(string(req.kind), req.name, success, attempts, duration)
}

// executeFunction performs the exchange for a function call, applying the
// retry policy: only the read-timeout class retries, bounded by RetryCount,
// with a fixed delay between attempts.
func (d *Dispatcher) executeFunction(req callRequest) (result int, success bool, attempts int) {
	target := d.endpointURL(req)
	body := url.Values{"arg": {req.arg}}.Encode()

	for attempt := 0; attempt <= d.cfg.RetryCount; attempt++ {
		attempts++
		resp, err := d.client.Invoke(context.Background(), Request{
			Method: "POST",
			URL:    target,
			Header: map[string]string{
				"Authorization": "Bearer " + req.creds.AccessToken,
				"Content-Type":  "application/x-www-form-urlencoded",
			},
			Body: body,
		})

		if err != nil {
			if IsTimeout(err) && attempt < d.cfg.RetryCount {
				d.logger.Info("retrying cloud function call after timeout",
					"call_id", req.id,
					"name", req.name,
					"attempt", attempt+1,
					"retry_limit", d.cfg.RetryCount,
				)
				d.clock.Sleep(d.cfg.RetryDelay)
				continue
			}
			d.logger.Error("cloud function call failed",
				"call_id", req.id, "name", req.name, "error", err)
			return -1, false, attempts
		}

		if resp.StatusCode != 200 {
			d.logger.Error("cloud function call failed",
				"call_id", req.id, "name", req.name,
				"error", ErrTransport, "status", resp.StatusCode)
			return -1, false, attempts
		}

		token, err := ExtractField(resp.Body, fieldReturnValue, d.cfg.DataLimit)
		if err != nil {
			d.logger.Error("cloud function response unreadable",
				"call_id", req.id, "name", req.name, "error", err)
			return -1, false, attempts
		}
		value, err := strconv.Atoi(token)
		if err != nil {
			d.logger.Error("cloud function response unreadable",
				"call_id", req.id, "name", req.name,
				"error", fmt.Errorf("%w: return_value %q not numeric", ErrFieldMalformed, token))
			return -1, false, attempts
		}

		d.logger.Debug("cloud function call complete",
			"call_id", req.id, "name", req.name, "return_value", value, "attempts", attempts)
		return value, true, attempts
	}

	return -1, false, attempts
}

// executeVariable performs the exchange for a variable read. No retries.
func (d *Dispatcher) executeVariable(req callRequest) (value string, success bool) {
	resp, err := d.client.Invoke(context.Background(), Request{
		Method: "GET",
		URL:    d.endpointURL(req),
		Header: map[string]string{
			"Authorization": "Bearer " + req.creds.AccessToken,
		},
	})
	if err != nil {
		d.logger.Error("cloud variable read failed",
			"call_id", req.id, "name", req.name, "error", err)
		return "", false
	}
	if resp.StatusCode != 200 {
		d.logger.Error("cloud variable read failed",
			"call_id", req.id, "name", req.name,
			"error", ErrTransport, "status", resp.StatusCode)
		return "", false
	}

	token, err := ExtractField(resp.Body, fieldResult, d.cfg.DataLimit)
	if err != nil {
		d.logger.Error("cloud variable response unreadable",
			"call_id", req.id, "name", req.name, "error", err)
		return "", false
	}

	d.logger.Debug("cloud variable read complete",
		"call_id", req.id, "name", req.name)
	return token, true
}

// endpointURL builds the device-scoped URL for a call.
func (d *Dispatcher) endpointURL(req callRequest) string {
	return fmt.Sprintf("%s/v1/devices/%s/%s", d.cfg.BaseURL, req.creds.DeviceID, req.name)
}

// ValidateCredentials checks a credential pair against the cloud API by
// pinging the device. This is a synchronous call intended for startup and
// the credentials API, not the control loop.
//
// Returns:
//   - online: Whether the device reported itself online
//   - error: ErrInvalidCredentials for length errors, ErrTransport (wrapped)
//     for rejected or failed exchanges
func (d *Dispatcher) ValidateCredentials(ctx context.Context, creds Credentials) (online bool, err error) {
	if err := creds.Validate(); err != nil {
		return false, err
	}

	resp, err := d.client.Invoke(ctx, Request{
		Method: "PUT",
		URL:    fmt.Sprintf("%s/v1/devices/%s/ping", d.cfg.BaseURL, creds.DeviceID),
		Header: map[string]string{
			"Authorization": "Bearer " + creds.AccessToken,
		},
	})
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if resp.StatusCode != 200 {
		return false, fmt.Errorf("%w: credential validation rejected (HTTP %d)", ErrTransport, resp.StatusCode)
	}

	// The ping succeeded, so the credentials are good; the online flag is
	// advisory and its absence is not an error.
	token, err := ExtractField(resp.Body, fieldOnline, d.cfg.DataLimit)
	if err != nil {
		return false, nil
	}
	return token == "true", nil
}
