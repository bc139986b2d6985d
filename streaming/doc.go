// Package streaming fans execution output out to live subscribers.
//
// The engine reports output one line at a time; the Broker publishes each
// line to a per-execution Redis channel, and the Relay forwards a
// subscription over a WebSocket connection. Redis pub/sub keeps the fan-out
// working across multiple service instances.
package streaming
