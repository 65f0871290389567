// Package wsclient is a receive-only WebSocket subscriber for the gateway's
// broadcast hub.
//
// The client answers server pings and reports ErrStaleConnection when the
// hub goes quiet for longer than PingTimeout. Frames can be filtered by feed
// tag before delivery. When the Messages buffer is full new frames are
// dropped and counted in Stats.
package wsclient
