package parley_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/expect"
	"github.com/aretw0/parley/pkg/pipeline"
)

// ExampleEngine_Poll demonstrates a full prompt/reply round trip with the
// in-memory adapters.
func ExampleEngine_Poll() {
	ctx := context.Background()
	transport := memory.NewTransport()

	eng := parley.New(memory.NewStore(), transport)
	if err := eng.Start(ctx); err != nil {
		log.Fatal(err)
	}

	amy, err := eng.AddContact(ctx, "Amy", "212-555-0001")
	if err != nil {
		log.Fatal(err)
	}

	if _, err := eng.Send(ctx, amy.ID, pipeline.Content{Text: "Garage is open. Close it? (yes/no)"}); err != nil {
		log.Fatal(err)
	}
	if _, err := eng.RegisterExpectation(ctx, amy.ID, expect.Prompt{
		Key:  "close_garage",
		Kind: domain.KindBoolean,
		TTL:  10 * time.Minute,
	}); err != nil {
		log.Fatal(err)
	}

	// Amy answers.
	transport.Deliver(domain.InboundMessage{ID: "42", Phone: "+12125550001", Text: "Yep"})

	evs, err := eng.Poll(ctx)
	if err != nil {
		log.Fatal(err)
	}
	for _, ev := range evs {
		switch e := ev.(type) {
		case *domain.MessageReceived:
			fmt.Printf("received %q from %s\n", e.Text, e.ContactID)
		case *domain.ReplyParsed:
			fmt.Printf("%s = %v\n", e.Key, e.Value)
		}
	}

	// Output:
	// received "Yep" from contact_amy
	// close_garage = true
}

// ExampleMenu_Text shows how a menu is rendered.
func ExampleMenu_Text() {
	m := parley.Menu{
		Options: parley.ParseOptions("Lights on\nLights off\n\nAway mode"),
		Header:  "Living room:",
	}
	fmt.Println(m.Text())

	// Output:
	// Living room:
	//
	// 1. Lights on
	// 2. Lights off
	// 3. Away mode
	//
	// Reply with the number of your choice.
}
