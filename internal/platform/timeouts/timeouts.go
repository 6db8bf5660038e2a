// Package timeouts defines shared timeout constants used across the sheet
// server and its command-line client.
package timeouts

import "time"

// GRPCDial caps the wait time when dialing the health endpoint.
const GRPCDial = 2 * time.Second

// HealthProbe caps a single health check round trip.
const HealthProbe = time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// Handshake limits how long a websocket peer may take to send its hello.
const Handshake = 5 * time.Second

// SocketWrite caps a single websocket frame write.
const SocketWrite = 5 * time.Second

// SocketIdle closes websocket connections that stay silent this long.
const SocketIdle = 10 * time.Minute
