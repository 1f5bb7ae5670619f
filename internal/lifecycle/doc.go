// Package lifecycle handles WebSocket connection events ($connect,
// $disconnect, $default) by attaching and detaching connections in the
// subscription registry.
//
// The transport cannot carry a granular status for these events, so
// Handle always acknowledges with 200. Failures are logged and pushed
// back to the connection as a JSON error message.
package lifecycle
