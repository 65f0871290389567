// Package gateway wires upstream feeds to the decoder and the broadcast hub.
//
// Each feed is described by a Profile: where to connect, which schema its
// data lines follow, which leading characters mark a data line, what to
// send on connect and how to subscribe once the server reports it is
// ready. The gateway owns one feed.Conn per profile and, for every line,
// runs the control handling (subscribe trigger, echo), the allow-list,
// decoding, tagging with "feed" and "messageType", and fan-out.
//
// Lines that fail to decode are counted and dropped.
package gateway
