// Package ingest consumes the ingestion queue.
//
// A Dispatcher runs a fixed pool of workers that Take RawMessages from the
// shared message.Queue and hand each one to a Processor. Workers never stop
// on a processing fault: errors and panics are logged, counted and the
// message is dropped.
//
// Shutdown:
//
//	When the Run context is cancelled the workers keep taking for up to
//	DrainTimeout, or until the queue is closed and empty. Close the queue
//	after the producers (gateway supervisors) have stopped so nothing is
//	admitted behind the drain.
//
// Processors:
//   - LogProcessor: debug log line per message
//   - ArchiveProcessor: raw_messages point in InfluxDB
//   - Chain: runs several processors in order
package ingest
