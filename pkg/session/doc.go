/*
Package session implements conversation management and persistence orchestration.

Every mutation of a conversation record runs inside WithLock: a reference
counted in-process mutex per conversation key, optionally backed by a
distributed lock so that several replicas sharing one store never interleave
read-modify-write cycles on the same record.
*/
package session
