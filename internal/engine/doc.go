// Package engine keeps a local ledger replica consistent with a shared
// remote store that several clients write concurrently.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// One goroutine (Run) owns the ledger.State. Local operations and remote
// changefeed events are both queued as events on an unbounded FIFO and
// applied one at a time, so no lock guards the ledger and every reader
// gets a clone (Snapshot).
//
// Local mutation path:
//  1. Validate the input; a ValidationError leaves the ledger untouched
//  2. Apply the change to the ledger (optimistic, no remote round trip)
//  3. Mark every record the remote write will echo as pending
//  4. Save the touched collections locally
//  5. Send the remote writes on a background goroutine (fire and forget)
//
// Remote event path:
//  1. Decode the row into a typed record for its table
//  2. If the record is pending, consume the marker and drop the event:
//     it is the echo of this session's own write
//  3. Otherwise merge it (overwrite, with monotonic paid amounts and
//     payment dedupe by id) and save the touched collections
//
// Remote write failures are logged and counted, never rolled back. A
// write rejected for a missing optional column is retried once without
// it. Pending markers expire after pending.TTL, so an echo arriving later
// than that is merged like any other change.
//
// Session lifecycle:
//
//	go e.Run(ctx)
//	e.Start(ctx)   // bootstrap, then one changefeed per table
//	...operations...
//	e.Flush(ctx)   // wait for in-flight remote writes
//	e.Close()      // stop changefeeds
//	e.Stop()       // Run drains the queue and returns
package engine
