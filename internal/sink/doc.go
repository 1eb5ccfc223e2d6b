// Package sink holds the in-memory consumers of the stream pipeline.
//
// Sinks:
//   - StatusStore: latest connection status (connection.StatusSink)
//   - MultiStatus: status fan-out
//   - Board: latest tick and order book per symbol (router.DataSink)
//
// The stream client calls status sinks with its lock held, so sinks and
// their listeners must not call back into the client synchronously.
package sink
