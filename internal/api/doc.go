// Package api provides the HTTP REST API and WebSocket server for the
// cloud bridge.
//
// It exposes door control and status, cloud credential management, and
// throttle diagnostics, plus a WebSocket stream of door state changes.
// All routes except the health check require an HS256 JWT; WebSocket
// clients pass the token as a query parameter.
//
// The server follows the same lifecycle pattern as the other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
