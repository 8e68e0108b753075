package signal

// Decision is what the engine wants done for one button press: a store
// mutation, an ordered list of side effects, and the text for the callback
// acknowledgment. The press is acknowledged no matter what: even a press
// whose interaction is long gone must not leave the client spinning.
type Decision struct {
	Op      StoreOp
	Effects []Effect
	Ack     string
}

type StoreOpKind int

const (
	OpNone StoreOpKind = iota
	OpRemove
	OpMove
)

// StoreOp describes the store mutation accompanying a decision. For OpMove,
// Entry is the advanced interaction to insert under NewKey.
type StoreOp struct {
	Kind   StoreOpKind
	Key    Key
	NewKey Key
	Entry  Pending
}

// Effect is a declarative side effect. The engine never performs I/O; the
// event loop applies effects in order and a failure in one never stops the
// rest.
type Effect interface {
	effect()
}

// SendText sends a plain message to a chat.
type SendText struct {
	To   Address
	Text string
}

// SendAcceptPrompt sends the second-stage prompt: the decoded payload with
// accept / decline buttons carrying the given correlation id.
type SendAcceptPrompt struct {
	To          Address
	Payload     string
	Correlation int
}

// DeleteMessage retracts a previously sent message.
type DeleteMessage struct {
	Chat      Address
	MessageID int
}

// EditText rewrites a message in place, which also strips its buttons.
type EditText struct {
	Chat      Address
	MessageID int
	Text      string
}

// StoreLedger archives the payload durably. Best-effort: its outcome
// decorates the reveal text and nothing else.
type StoreLedger struct {
	SignalID string
	Payload  string
}

// Notify delivers text to the sender, resolved by handle at apply time.
type Notify struct {
	Handle string
	Text   string
}

// Reveal discloses the sender to the recipient. The applier appends the
// ledger outcome to the text.
type Reveal struct {
	To           Address
	SenderHandle string
	Payload      string
}

// Advise asks the advisory collaborator for a note and delivers it to the
// sender. Best-effort.
type Advise struct {
	Handle  string
	Context string
}

func (SendText) effect()         {}
func (SendAcceptPrompt) effect() {}
func (DeleteMessage) effect()    {}
func (EditText) effect()         {}
func (StoreLedger) effect()      {}
func (Notify) effect()           {}
func (Reveal) effect()           {}
func (Advise) effect()           {}

const (
	ackOpened      = "Signal opened"
	ackDecoded     = "Message decoded"
	ackDeclined    = "Declined"
	declineReceipt = "Got it. Kills: +1"
	notOpenedNote  = "Your signal was not opened."
)

// Decide maps one button press plus current store state to a decision.
// lookup reads the store without mutating it; the decision's Op carries the
// mutation so the caller can apply it at the right point.
func Decide(press ButtonPress, lookup func(Key) (Pending, bool)) Decision {
	switch press.Token.Action {
	case ActionOpen:
		return decideOpen(press, lookup)
	case ActionIgnore:
		return decideIgnore(press, lookup)
	case ActionAccept:
		return decideAccept(press, lookup)
	case ActionDeclineAccept:
		return decideDeclineAccept(press, lookup)
	case ActionRegister:
		// Registration is the gate's business, not a signal stage.
		return Decision{}
	case ActionUnknown:
		return Decision{}
	default:
		return Decision{}
	}
}

func decideOpen(press ButtonPress, lookup func(Key) (Pending, bool)) Decision {
	key := Key{Address: press.Address, Token: FormatToken(ActionOpen, press.Token.Correlation)}
	p, ok := lookup(key)
	if !ok {
		// Already handled or replayed; ack only.
		return Decision{}
	}

	var effects []Effect
	if p.ImageMessageID != 0 {
		effects = append(effects, DeleteMessage{Chat: press.Address, MessageID: p.ImageMessageID})
	}
	if press.PromptMessageID != 0 {
		effects = append(effects, DeleteMessage{Chat: press.Address, MessageID: press.PromptMessageID})
	}
	effects = append(effects, SendAcceptPrompt{
		To:          press.Address,
		Payload:     p.Payload,
		Correlation: press.Token.Correlation,
	})

	advanced := p
	advanced.Stage = StageAwaitingAccept
	advanced.ImageMessageID = 0
	advanced.PromptMessageID = 0

	return Decision{
		Op: StoreOp{
			Kind:   OpMove,
			Key:    key,
			NewKey: Key{Address: press.Address, Token: FormatToken(ActionAccept, press.Token.Correlation)},
			Entry:  advanced,
		},
		Effects: effects,
		Ack:     ackOpened,
	}
}

func decideIgnore(press ButtonPress, lookup func(Key) (Pending, bool)) Decision {
	key := Key{Address: press.Address, Token: FormatToken(ActionOpen, press.Token.Correlation)}
	p, ok := lookup(key)
	if !ok {
		return Decision{}
	}

	var effects []Effect
	if p.SenderHandle != "" {
		effects = append(effects, Notify{Handle: p.SenderHandle, Text: notOpenedNote})
	}
	if p.ImageMessageID != 0 {
		effects = append(effects, DeleteMessage{Chat: press.Address, MessageID: p.ImageMessageID})
	}
	if press.PromptMessageID != 0 {
		effects = append(effects, DeleteMessage{Chat: press.Address, MessageID: press.PromptMessageID})
	}
	effects = append(effects, SendText{To: press.Address, Text: declineReceipt})

	return Decision{
		Op:      StoreOp{Kind: OpRemove, Key: key},
		Effects: effects,
		Ack:     ackDeclined,
	}
}

func decideAccept(press ButtonPress, lookup func(Key) (Pending, bool)) Decision {
	key := Key{Address: press.Address, Token: FormatToken(ActionAccept, press.Token.Correlation)}
	p, ok := lookup(key)
	if !ok {
		return Decision{}
	}

	var effects []Effect
	effects = append(effects, StoreLedger{SignalID: p.ID, Payload: p.Payload})
	if press.PromptMessageID != 0 {
		effects = append(effects, EditText{Chat: press.Address, MessageID: press.PromptMessageID, Text: p.Payload})
	}
	effects = append(effects, Reveal{To: press.Address, SenderHandle: p.SenderHandle, Payload: p.Payload})
	if p.SenderHandle != "" {
		effects = append(effects, Advise{
			Handle:  p.SenderHandle,
			Context: "The signal you sent was read and accepted by the recipient.",
		})
	}

	return Decision{
		Op:      StoreOp{Kind: OpRemove, Key: key},
		Effects: effects,
		Ack:     ackDecoded,
	}
}

// decideDeclineAccept handles declining after reading. It does not notify
// the sender; only a pre-open decline does.
func decideDeclineAccept(press ButtonPress, lookup func(Key) (Pending, bool)) Decision {
	key := Key{Address: press.Address, Token: FormatToken(ActionAccept, press.Token.Correlation)}
	if _, ok := lookup(key); !ok {
		return Decision{}
	}

	var effects []Effect
	if press.PromptMessageID != 0 {
		effects = append(effects, DeleteMessage{Chat: press.Address, MessageID: press.PromptMessageID})
	}
	effects = append(effects, SendText{To: press.Address, Text: declineReceipt})

	return Decision{
		Op:      StoreOp{Kind: OpRemove, Key: key},
		Effects: effects,
		Ack:     ackDeclined,
	}
}
