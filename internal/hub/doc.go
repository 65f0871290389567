// Package hub accepts WebSocket subscribers and fans every broadcast frame
// out to all of them.
//
// Each subscriber is a session with its own outbound queue and writer
// goroutine, so a broadcast never waits on a socket. A session is evicted
// when a write or ping fails, when the peer goes away, or when its queue
// grows past Config.MaxPending. Eviction removes the session from the set,
// closes the socket and discards whatever was still queued.
//
// Subscribers are receive-only; anything they send is read and dropped.
package hub
