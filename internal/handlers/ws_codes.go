package handlers

// Custom WebSocket close codes used by the quiz socket.
const (
	BadSubprotocolError = 3000 // Client connected without the quiz subprotocol.
	ServerShutdownError = 3001 // Server is shutting down.
)

// Subprotocol is the websocket subprotocol clients must request.
const Subprotocol = "quiz"
