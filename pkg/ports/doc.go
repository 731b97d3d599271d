/*
Package ports defines the driven ports (interfaces) for the parley core.

These interfaces decouple the core logic from external implementations, allowing
the engine to work with various SMS providers and storage backends.

# Key Interfaces

  - MessageTransport: fetches unread messages and sends SMS/MMS/voice parts.
  - StateStore: persists contacts, conversations and the ingest cursor.
  - DistributedLocker: provides distributed locking for concurrent conversation access.
*/
package ports
