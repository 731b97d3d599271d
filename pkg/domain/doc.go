/*
Package domain contains the core domain models for parley.

It defines contacts, pending expectations, conversations, inbound and outbound
messages, and the events emitted by the core. This package is kept pure and free
of external dependencies like I/O or persistence.

# Key Entities

  - Contact: a registered person with a canonical phone number.
  - Expectation: a time-bounded description of an awaited reply (Choice, Text, Number, Boolean).
  - Conversation: the durable per-contact record (pending expectations, context, activity).
  - Event: MessageReceived, ReplyParsed, MessageSent, ExpectationExpired.
*/
package domain
