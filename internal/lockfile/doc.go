// Package lockfile provides per-issue mutual exclusion across independent
// OS processes that share one coordination directory. There is no daemon
// and no network service: the filesystem's atomic create-if-absent
// semantics decide every acquisition race, and a periodic heartbeat
// timestamp distinguishes a live holder from a crashed one.
//
// # Lock Lifecycle
//
// A lock record is one JSON file per issue under locks/ inside the
// coordination directory. It is created on acquisition, has only its
// last_heartbeat field rewritten by the holder while work proceeds, and
// is deleted on release. A non-holder never mutates a record except to
// delete one that is confirmed stale.
//
// # Staleness
//
// A lock is stale when its heartbeat is older than the configured timeout
// (default 120 minutes). Whether the recorded pid still exists is an
// auxiliary signal only: a live pid does not override an elapsed
// heartbeat, since a hung process must not hold its issue forever.
//
// # Known Race Window
//
// A late heartbeat from the legitimate holder and a stale-cleanup delete
// from another process can interleave, briefly recreating a lock that was
// just evicted. This bounded inconsistency is accepted rather than closed
// with a second coordination mechanism; see the package tests.
package lockfile
