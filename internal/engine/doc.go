// Package engine orchestrates the point-of-sale operations: seating a
// table, taking orders, firing course waves to the kitchen, moving items
// through the kitchen lifecycle, taking payments and closing the session.
//
// Every operation returns a discriminated outcome. Expected business
// failures (a session that is not open, an item that is not ready, an
// unpaid balance) are reported as a failed domain.Result with a reason
// tag, never as a Go error. Errors are reserved for malformed calls,
// idempotency key conflicts and internal faults.
//
// Mutating operations require an idempotency key. The outcome of the
// first call with a key, failed or successful, is stored in the same
// transaction as the mutation and replayed verbatim on retry.
//
// Operation shape:
//
//	guard (replay or conflict) -> validate -> load -> authorize -> check -> write -> event
package engine
