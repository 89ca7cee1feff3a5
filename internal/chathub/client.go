package chathub

// Client is the interface for one live connection (e.g., a WebSocket).
// It abstracts the underlying transport so the coordinator, the registry and
// the broadcaster can be exercised without sockets.
type Client interface {
	// GetConnID returns the transport-assigned id, unique among live connections.
	GetConnID() string

	// Enqueue hands one encoded frame to the client's writer without blocking.
	// It returns false when the client is closed or its send buffer is full.
	Enqueue(frame []byte) bool

	// Run starts the client's read and write pumps.
	Run()
	// Close stops future deliveries and lets the writer flush what is queued.
	// It is safe to call more than once.
	Close()
}
