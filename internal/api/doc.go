// Package api serves the HTTP control plane and the live WebSocket feed.
//
// Routes (all under /api/v1):
//
//	GET  /health            liveness plus dependency checks
//	GET  /metrics           runtime and device statistics
//	GET  /ws                WebSocket feed: "counter.snapshot" then "counter.changed"
//	GET  /device/id         "Chip ID: 0x...\n"
//	GET  /device/cmd        "Command buffer: 0x...\n"
//	PUT  /device/cmd        text body written to the command register
//	GET  /device/count      "Interrupt count: N\n"
//	GET  /device/stats      device statistics
//	GET  /device/history    journaled mutations, newest first (?limit=)
//	POST /device/interrupt  simulation only: latch status bits, raise the line
//
// The textual device endpoints answer text/plain; everything else is JSON.
// When a JWT secret is configured, PUT /device/cmd and POST
// /device/interrupt require an operator bearer token.
//
// Lifecycle:
//
//	srv, err := api.New(deps)
//	srv.Start(ctx)
//	defer srv.Close()
package api
