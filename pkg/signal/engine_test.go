package signal

import "testing"

func storeLookup(s *Store) func(Key) (Pending, bool) {
	return s.Get
}

func pressFor(addr Address, data string, promptID int) ButtonPress {
	return ButtonPress{
		Address:         addr,
		PromptMessageID: promptID,
		PressID:         "press-1",
		Token:           ParseToken(data),
		PressingHandle:  "recipient",
	}
}

func TestDecideOpenAdvancesStage(t *testing.T) {
	s := NewStore()
	s.Put(Key{Address: 100, Token: "open:42"}, Pending{
		ID:              "sig-1",
		Payload:         "meet me at dawn",
		SenderHandle:    "bob",
		ImageMessageID:  42,
		PromptMessageID: 43,
		Stage:           StageAwaitingOpen,
	})

	d := Decide(pressFor(100, "open:42", 43), storeLookup(s))

	if d.Op.Kind != OpMove {
		t.Fatalf("op kind = %v, want move", d.Op.Kind)
	}
	if d.Op.NewKey.Token != "accept:42" {
		t.Fatalf("new key = %q, want accept:42", d.Op.NewKey.Token)
	}
	if d.Op.Entry.Stage != StageAwaitingAccept {
		t.Fatalf("advanced stage = %v, want awaiting accept", d.Op.Entry.Stage)
	}
	if d.Ack == "" {
		t.Fatal("open press must carry an ack")
	}

	// Deletions must precede the accept prompt so the chat never shows
	// both stages at once.
	if len(d.Effects) != 3 {
		t.Fatalf("got %d effects, want 3: %+v", len(d.Effects), d.Effects)
	}
	if del, ok := d.Effects[0].(DeleteMessage); !ok || del.MessageID != 42 {
		t.Fatalf("effect[0] = %+v, want delete of image 42", d.Effects[0])
	}
	if del, ok := d.Effects[1].(DeleteMessage); !ok || del.MessageID != 43 {
		t.Fatalf("effect[1] = %+v, want delete of prompt 43", d.Effects[1])
	}
	prompt, ok := d.Effects[2].(SendAcceptPrompt)
	if !ok {
		t.Fatalf("effect[2] = %+v, want accept prompt", d.Effects[2])
	}
	if prompt.Payload != "meet me at dawn" || prompt.Correlation != 42 {
		t.Fatalf("accept prompt = %+v", prompt)
	}
}

func TestDecideIgnoreNotifiesSender(t *testing.T) {
	s := NewStore()
	s.Put(Key{Address: 100, Token: "open:42"}, Pending{
		ID:              "sig-1",
		Payload:         "secret",
		SenderHandle:    "bob",
		ImageMessageID:  42,
		PromptMessageID: 43,
	})

	d := Decide(pressFor(100, "ignore:42", 43), storeLookup(s))

	if d.Op.Kind != OpRemove {
		t.Fatalf("op kind = %v, want remove", d.Op.Kind)
	}

	notified := false
	for _, eff := range d.Effects {
		if n, ok := eff.(Notify); ok {
			notified = true
			if n.Handle != "bob" {
				t.Fatalf("notify handle = %q, want bob", n.Handle)
			}
		}
	}
	if !notified {
		t.Fatal("ignore with a known sender must notify")
	}

	last, ok := d.Effects[len(d.Effects)-1].(SendText)
	if !ok {
		t.Fatalf("last effect = %+v, want decline receipt", d.Effects[len(d.Effects)-1])
	}
	if last.To != 100 {
		t.Fatalf("receipt goes to %d, want recipient 100", last.To)
	}
}

func TestDecideIgnoreAnonymousSenderSkipsNotify(t *testing.T) {
	s := NewStore()
	s.Put(Key{Address: 100, Token: "open:42"}, Pending{ID: "sig-1", Payload: "secret"})

	d := Decide(pressFor(100, "ignore:42", 43), storeLookup(s))

	for _, eff := range d.Effects {
		if _, ok := eff.(Notify); ok {
			t.Fatal("no sender handle, nothing to notify")
		}
	}
}

func TestDecideAcceptRevealsAndArchives(t *testing.T) {
	s := NewStore()
	s.Put(Key{Address: 100, Token: "accept:42"}, Pending{
		ID:           "sig-1",
		Payload:      "secret",
		SenderHandle: "bob",
		Stage:        StageAwaitingAccept,
	})

	d := Decide(pressFor(100, "accept:42", 50), storeLookup(s))

	if d.Op.Kind != OpRemove || d.Op.Key.Token != "accept:42" {
		t.Fatalf("op = %+v, want remove of accept:42", d.Op)
	}

	if _, ok := d.Effects[0].(StoreLedger); !ok {
		t.Fatalf("effect[0] = %+v, want ledger store", d.Effects[0])
	}
	var reveal *Reveal
	var advised bool
	for _, eff := range d.Effects {
		switch e := eff.(type) {
		case Reveal:
			reveal = &e
		case Advise:
			advised = true
		}
	}
	if reveal == nil {
		t.Fatal("accept must reveal the sender")
	}
	if reveal.SenderHandle != "bob" {
		t.Fatalf("reveal handle = %q, want bob", reveal.SenderHandle)
	}
	if !advised {
		t.Fatal("accept with a known sender must request advisory")
	}
}

func TestDecideDeclineAcceptDoesNotNotify(t *testing.T) {
	s := NewStore()
	s.Put(Key{Address: 100, Token: "accept:42"}, Pending{
		ID:           "sig-1",
		Payload:      "secret",
		SenderHandle: "bob",
		Stage:        StageAwaitingAccept,
	})

	d := Decide(pressFor(100, "decline_accept:42", 50), storeLookup(s))

	if d.Op.Kind != OpRemove {
		t.Fatalf("op kind = %v, want remove", d.Op.Kind)
	}
	for _, eff := range d.Effects {
		if _, ok := eff.(Notify); ok {
			t.Fatal("post-open decline never notifies the sender")
		}
		if _, ok := eff.(Advise); ok {
			t.Fatal("post-open decline never requests advisory")
		}
	}
	last, ok := d.Effects[len(d.Effects)-1].(SendText)
	if !ok || last.To != 100 {
		t.Fatalf("last effect = %+v, want receipt to recipient", d.Effects[len(d.Effects)-1])
	}
}

func TestDecideAbsentKeyIsAckOnly(t *testing.T) {
	s := NewStore()

	for _, data := range []string{"open:42", "ignore:42", "accept:42", "decline_accept:42"} {
		d := Decide(pressFor(100, data, 43), storeLookup(s))
		if d.Op.Kind != OpNone {
			t.Fatalf("%s on empty store: op = %v, want none", data, d.Op.Kind)
		}
		if len(d.Effects) != 0 {
			t.Fatalf("%s on empty store: %d effects, want 0", data, len(d.Effects))
		}
	}
}

func TestDecideReplayAfterResolve(t *testing.T) {
	s := NewStore()
	key := Key{Address: 100, Token: "open:42"}
	s.Put(key, Pending{ID: "sig-1", Payload: "secret"})

	first := Decide(pressFor(100, "ignore:42", 43), storeLookup(s))
	if first.Op.Kind != OpRemove {
		t.Fatalf("first press op = %v, want remove", first.Op.Kind)
	}
	s.Remove(key)

	replay := Decide(pressFor(100, "ignore:42", 43), storeLookup(s))
	if replay.Op.Kind != OpNone || len(replay.Effects) != 0 {
		t.Fatalf("replay must be ack-only, got %+v", replay)
	}
}

func TestDecideUnknownActionIsNoop(t *testing.T) {
	s := NewStore()
	s.Put(Key{Address: 100, Token: "open:42"}, Pending{ID: "sig-1"})

	d := Decide(pressFor(100, "self_destruct:42", 43), storeLookup(s))
	if d.Op.Kind != OpNone || len(d.Effects) != 0 {
		t.Fatalf("unknown action must decide nothing, got %+v", d)
	}
}
