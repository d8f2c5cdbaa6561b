// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the race handler.
const (
	BadSubprotocolError = 3000 // Client connected without the race subprotocol.
	SlowConsumerError   = 3001 // Outbound buffer overflowed; the client was not reading.
)
