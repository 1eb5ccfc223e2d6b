// Package connection implements the streaming side of the quote pipeline.
//
// The StreamClient:
//   - Owns exactly one WebSocket connection to the push service
//   - Reference-counts per-symbol subscriptions (wire frames only on 0↔1 edges)
//   - Replays the subscription table after every successful open
//   - Sends application pings and detects stale sockets
//   - Reconnects with capped exponential backoff
//   - Rejects callbacks from superseded connections via a generation token
//   - Hands inbound frames to a Dispatcher (see package router)
package connection
