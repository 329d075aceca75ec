package interfaces

// -----------------------------------------------------------------------------
// IConnection is a live transport handle as seen by the hub. Send is
// non-blocking: it reports false when the client's buffer is full or the
// connection is gone, and the hub simply skips that client.
// -----------------------------------------------------------------------------

type IConnection interface {

	// -----------------------------------------------------------------------------

	// ID uniquely identifies the connection for registry bookkeeping.
	ID() string

	// -----------------------------------------------------------------------------

	// Send queues one outbound frame without blocking.
	Send(frame interface{}) bool
}

// -----------------------------------------------------------------------------
// IDataExchanger is the outer transport surface (HTTP + websocket server).
// -----------------------------------------------------------------------------

type IDataExchanger interface {

	// -----------------------------------------------------------------------------

	// Start the server
	Start() error

	// -----------------------------------------------------------------------------

	// Stop the server gracefully
	Stop() error
}
