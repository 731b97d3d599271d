/*
Package parley carries on short, stateful SMS conversations for a smart-home
controller.

A host sends a message, optionally registers an expectation describing the
reply it awaits, and polls the provider. Inbound messages are deduplicated,
filtered through an optional allowlist, matched against the sender's pending
expectations and parsed into typed values. Each poll cycle returns domain
events (MessageReceived, ReplyParsed, ExpectationExpired) that the host
dispatches to its own automation layer.

# Architecture

The core is decoupled from its collaborators through two ports:

  - ports.MessageTransport fetches unread messages and delivers outbound ones
    (TextNow, Twilio or the in-memory transport).
  - ports.StateStore persists contacts, conversation records and the ingest
    cursor (memory, file, redis or postgres).

Mutations of one conversation are serialized by the session manager, optionally
across replicas with a ports.DistributedLocker, and every logical operation is
a single store write.

# Usage

	store := memory.NewStore()
	transport := memory.NewTransport()

	eng := parley.New(store, transport, parley.WithAllowlist("2125550001"))
	if err := eng.Start(ctx); err != nil {
		log.Fatal(err)
	}

	amy, _ := eng.AddContact(ctx, "Amy", "(212) 555-0001")

	// Ask a question and wait for the answer.
	_, err := eng.Send(ctx, amy.ID, pipeline.Content{Text: "Lock the front door?"})
	if err == nil {
		_, err = eng.RegisterExpectation(ctx, amy.ID, expect.Prompt{
			Key:  "lock_door",
			Kind: domain.KindBoolean,
			TTL:  10 * time.Minute,
		})
	}

	// Drive ingestion; ReplyParsed events carry the typed answer.
	go eng.Run(ctx)
	reply, _ := eng.AwaitReply(ctx, amy.ID, "lock_door", 10*time.Minute)
*/
package parley
