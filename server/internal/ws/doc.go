// Package ws relays chat messages between WebSocket clients in the same room.
//
// Hub.ServeHTTP upgrades a request to WebSocket and attaches the connection to
// the room named by its ?room= query parameter, creating the room on first
// use. Each connection runs two workers:
//
//   - inbound reads text frames and publishes them to the room unchanged.
//   - outbound forwards room messages back to the client after decoding and
//     validating them as {"username": ..., "message": ...}. Messages that fail
//     are dropped and logged; the connection stays open.
//
// The sender is itself a subscriber, so it receives its own messages. When
// either worker stops the other is cancelled and the connection is closed.
// A client that falls more than the room buffer behind is disconnected.
//
// Hub.Run(ctx) blocks until ctx is cancelled, then closes every session with a
// going-away close frame and waits for them to finish.
package ws
