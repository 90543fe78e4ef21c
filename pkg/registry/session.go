package registry

import "context"

// Session is the message channel to one connected agent. The
// WebSocket implementation lives in pkg/api; tests and the dispatcher
// only depend on this interface.
type Session interface {
	Send(ctx context.Context, message interface{}) error
	Close() error
}
