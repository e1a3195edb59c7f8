// Package particle bridges Gray Logic to Particle-class cloud device APIs.
//
// The cloud API is a blocking HTTP surface: invoke a function on a device,
// read a variable, ping it. This package turns those exchanges into
// asynchronous calls that never block the caller, which lets the door
// control loop keep its tick cadence while requests are in flight.
//
// Components:
//   - Dispatcher: asynchronous call submission with exactly-once callbacks,
//     a bounded worker pool, and a bounded retry policy for timeouts
//   - Throttle: per-endpoint minimum spacing between calls
//   - HTTPClient: the blocking transport (RemoteClient for tests)
//   - LoopSync: the shared mutual-exclusion scope between the control loop
//     and callback deliveries
//   - Credentials / SQLiteCredentialStore: access token and device ID
//     persistence
//
// Callback contract: every submitted call delivers its callback exactly
// once, inside the Synchronizer scope, on success and on every failure path.
// Callers must not hold the scope while submitting.
package particle
