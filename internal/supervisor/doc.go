// Package supervisor runs node applications as supervised external processes.
//
// A Service owns the job queue of one node and a single goroutine that is the
// only writer of that queue. Callers talk to it through a mailbox; the loop
// itself waits on three things:
//
//   - a ticker (1s by default) that starts the head job when it is not running
//   - the exit of the running job, which dequeues it and archives its log
//   - cancellation, which kills the running job and stops the loop
//
// The live log of a node is renamed to <log>.<startMs>.<endMs> once the job's
// output readers have drained and the process has been reaped, so the next job
// can reuse the live path.
package supervisor
