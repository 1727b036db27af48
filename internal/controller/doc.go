// Package controller implements the inventory sync loop of the poller.
//
// A sync cycle fetches the devices of every source in configuration order,
// each fetch bounded by the inventory timeout. Batches are deep-copied and
// merged; a device already provided by an earlier source is dropped with a
// warning. The merged inventory is split by the chunker into as many chunks
// as the manager has workers and handed to the manager. In continuous mode
// the cycle repeats after the update period.
//
// A source timeout, a source error or an empty inventory is fatal: the cycle
// is not retried and the controller stops.
//
// # Signals
//
// SIGINT and SIGTERM cancel the tasks of every controller in the process.
// See TerminationContext.
package controller
