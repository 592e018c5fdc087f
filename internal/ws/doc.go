// Package ws implements the WebSocket hub of the serve command.
//
// Hub manages a set of connected clients. A client receives the current
// snapshot as soon as it connects; after that, the hub checks the store on
// every tick and broadcasts a fresh snapshot only when the store changed.
//
// Message format sent to clients:
//
//	{
//	  "event": "snapshot",
//	  "data":  { /* same schema as GET /api/v1/snapshot */ }
//	}
//
// The upgrader accepts all origins. The endpoint is mounted at /ws/stream.
package ws
