package loop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/firstsignal/signalbot/pkg/config"
	"github.com/firstsignal/signalbot/pkg/ledger"
	"github.com/firstsignal/signalbot/pkg/signal"
)

type sentText struct {
	to   signal.Address
	text string
}

type sentPrompt struct {
	to      signal.Address
	text    string
	buttons []signal.Button
	id      int
}

type fakeTransport struct {
	calls   []string
	nextID  int
	texts   []sentText
	prompts []sentPrompt
	edits   []sentText
	acks    []string

	failSendPrompt bool
	failSendImage  bool
	failDelete     bool
}

func (f *fakeTransport) PollEvents(ctx context.Context, cursor int64, timeoutSeconds int) ([]signal.Event, error) {
	return nil, nil
}

func (f *fakeTransport) SendText(ctx context.Context, to signal.Address, text string) (int, error) {
	f.calls = append(f.calls, "send_text")
	f.nextID++
	f.texts = append(f.texts, sentText{to: to, text: text})
	return f.nextID, nil
}

func (f *fakeTransport) SendPrompt(ctx context.Context, to signal.Address, text string, buttons []signal.Button) (int, error) {
	f.calls = append(f.calls, "send_prompt")
	if f.failSendPrompt {
		return 0, errors.New("prompt refused")
	}
	f.nextID++
	f.prompts = append(f.prompts, sentPrompt{to: to, text: text, buttons: buttons, id: f.nextID})
	return f.nextID, nil
}

func (f *fakeTransport) SendImage(ctx context.Context, to signal.Address, url string) (int, error) {
	f.calls = append(f.calls, "send_image")
	if f.failSendImage {
		return 0, errors.New("image refused")
	}
	f.nextID++
	return f.nextID, nil
}

func (f *fakeTransport) EditText(ctx context.Context, chat signal.Address, messageID int, text string) error {
	f.calls = append(f.calls, fmt.Sprintf("edit:%d", messageID))
	f.edits = append(f.edits, sentText{to: chat, text: text})
	return nil
}

func (f *fakeTransport) DeleteMessage(ctx context.Context, chat signal.Address, messageID int) error {
	f.calls = append(f.calls, fmt.Sprintf("delete:%d", messageID))
	if f.failDelete {
		return errors.New("message is gone")
	}
	return nil
}

func (f *fakeTransport) AcknowledgePress(ctx context.Context, pressID, text string) error {
	f.calls = append(f.calls, "ack")
	f.acks = append(f.acks, text)
	return nil
}

type fakeDirectory struct {
	registered map[signal.Address]string
	byHandle   map[string]signal.Address
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		registered: make(map[signal.Address]string),
		byHandle:   make(map[string]signal.Address),
	}
}

func (f *fakeDirectory) add(addr signal.Address, handle string) {
	f.registered[addr] = handle
	if handle != "" {
		f.byHandle[strings.ToLower(handle)] = addr
	}
}

func (f *fakeDirectory) IsRegistered(addr signal.Address) bool {
	_, ok := f.registered[addr]
	return ok
}

func (f *fakeDirectory) Register(addr signal.Address, handle string) error {
	f.add(addr, handle)
	return nil
}

func (f *fakeDirectory) FindAddressByHandle(handle string) (signal.Address, bool) {
	addr, ok := f.byHandle[strings.ToLower(strings.TrimPrefix(handle, "@"))]
	return addr, ok
}

func (f *fakeDirectory) HandleByAddress(addr signal.Address) (string, bool) {
	h, ok := f.registered[addr]
	return h, ok && h != ""
}

type fakeLedger struct {
	result ledger.Result
	calls  int
}

func (f *fakeLedger) Store(ctx context.Context, signalID, message string) ledger.Result {
	f.calls++
	return f.result
}

type fakeAdvisor struct {
	text  string
	err   error
	calls int
}

func (f *fakeAdvisor) Generate(ctx context.Context, contextText string) (string, error) {
	f.calls++
	return f.text, f.err
}

func newTestLoop(transport *fakeTransport, dir *fakeDirectory, led *fakeLedger, advisor Advisor) *Loop {
	cfg := config.DefaultConfig()
	cfg.Flow.ImageURL = "https://example.com/sealed.jpg"
	return NewLoop(cfg, transport, dir, led, advisor)
}

func press(addr signal.Address, data string, promptID int) signal.ButtonPress {
	return signal.ButtonPress{
		Address:         addr,
		PromptMessageID: promptID,
		PressID:         "cb-1",
		Token:           signal.ParseToken(data),
		PressingHandle:  "alice",
	}
}

func TestOpenPressDeletesBeforePrompting(t *testing.T) {
	transport := &fakeTransport{}
	dir := newFakeDirectory()
	dir.add(100, "alice")
	l := newTestLoop(transport, dir, &fakeLedger{}, nil)

	l.store.Put(signal.Key{Address: 100, Token: "open:42"}, signal.Pending{
		ID:              "sig-1",
		Payload:         "meet me at dawn",
		SenderHandle:    "bob",
		ImageMessageID:  42,
		PromptMessageID: 43,
		Stage:           signal.StageAwaitingOpen,
	})

	l.handlePress(context.Background(), press(100, "open:42", 43))

	want := []string{"ack", "delete:42", "delete:43", "send_prompt"}
	if len(transport.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", transport.calls, want)
	}
	for i := range want {
		if transport.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", transport.calls, want)
		}
	}

	// The interaction moved to the accept stage keyed by the same
	// correlation id, carrying the new prompt's message id.
	if _, ok := l.store.Get(signal.Key{Address: 100, Token: "open:42"}); ok {
		t.Fatal("open key should be gone after the move")
	}
	p, ok := l.store.Get(signal.Key{Address: 100, Token: "accept:42"})
	if !ok {
		t.Fatal("accept key missing after the move")
	}
	if p.Stage != signal.StageAwaitingAccept {
		t.Fatalf("stage = %v, want awaiting accept", p.Stage)
	}
	if p.PromptMessageID != transport.prompts[0].id {
		t.Fatalf("prompt id = %d, want %d", p.PromptMessageID, transport.prompts[0].id)
	}

	buttons := transport.prompts[0].buttons
	if len(buttons) != 2 || buttons[0].Token != "accept:42" || buttons[1].Token != "decline_accept:42" {
		t.Fatalf("accept prompt buttons = %+v", buttons)
	}
}

func TestOpenPressFailedDeleteStillPrompts(t *testing.T) {
	transport := &fakeTransport{failDelete: true}
	dir := newFakeDirectory()
	dir.add(100, "alice")
	l := newTestLoop(transport, dir, &fakeLedger{}, nil)

	l.store.Put(signal.Key{Address: 100, Token: "open:42"}, signal.Pending{
		ID:             "sig-1",
		Payload:        "secret",
		ImageMessageID: 42,
	})

	l.handlePress(context.Background(), press(100, "open:42", 43))

	if len(transport.prompts) != 1 {
		t.Fatalf("accept prompt not sent despite delete failures: %v", transport.calls)
	}
	if _, ok := l.store.Get(signal.Key{Address: 100, Token: "accept:42"}); !ok {
		t.Fatal("stage should advance even when deletes fail")
	}
}

func TestAcceptPressArchivesAndReveals(t *testing.T) {
	transport := &fakeTransport{}
	dir := newFakeDirectory()
	dir.add(100, "alice")
	dir.add(200, "bob")
	led := &fakeLedger{result: ledger.Result{Success: true, Reference: "0xabcdef0123456789"}}
	advisor := &fakeAdvisor{text: "A fine choice."}
	l := newTestLoop(transport, dir, led, advisor)

	l.store.Put(signal.Key{Address: 100, Token: "accept:42"}, signal.Pending{
		ID:              "sig-1",
		Payload:         "meet me at dawn",
		SenderHandle:    "bob",
		PromptMessageID: 50,
		Stage:           signal.StageAwaitingAccept,
	})

	l.handlePress(context.Background(), press(100, "accept:42", 50))

	if led.calls != 1 {
		t.Fatalf("ledger called %d times, want 1", led.calls)
	}
	if len(transport.edits) != 1 || transport.edits[0].text != "meet me at dawn" {
		t.Fatalf("edits = %+v, want payload in place of prompt", transport.edits)
	}

	var reveal, advice *sentText
	for i := range transport.texts {
		switch transport.texts[i].to {
		case 100:
			reveal = &transport.texts[i]
		case 200:
			advice = &transport.texts[i]
		}
	}
	if reveal == nil {
		t.Fatal("recipient never got the reveal")
	}
	if !strings.Contains(reveal.text, "@bob") {
		t.Fatalf("reveal %q does not name the sender", reveal.text)
	}
	if !strings.Contains(reveal.text, "archived") || !strings.Contains(reveal.text, "0xabcdef01...") {
		t.Fatalf("reveal %q does not carry the ledger reference", reveal.text)
	}
	if advice == nil || advice.text != "A fine choice." {
		t.Fatalf("sender advice = %+v, want generated text", advice)
	}

	if _, ok := l.store.Get(signal.Key{Address: 100, Token: "accept:42"}); ok {
		t.Fatal("interaction should be resolved after accept")
	}
}

func TestAcceptPressLedgerFailureStillReveals(t *testing.T) {
	transport := &fakeTransport{}
	dir := newFakeDirectory()
	dir.add(100, "alice")
	dir.add(200, "bob")
	led := &fakeLedger{result: ledger.Result{Err: "ledger returned 500"}}
	advisor := &fakeAdvisor{text: "Chin up."}
	l := newTestLoop(transport, dir, led, advisor)

	l.store.Put(signal.Key{Address: 100, Token: "accept:42"}, signal.Pending{
		ID:           "sig-1",
		Payload:      "secret",
		SenderHandle: "bob",
		Stage:        signal.StageAwaitingAccept,
	})

	l.handlePress(context.Background(), press(100, "accept:42", 50))

	var reveal string
	for _, s := range transport.texts {
		if s.to == 100 {
			reveal = s.text
		}
	}
	if reveal == "" {
		t.Fatal("ledger failure must not suppress the reveal")
	}
	if !strings.Contains(reveal, "archive error") {
		t.Fatalf("reveal %q should mention the archive error", reveal)
	}
	if advisor.calls != 1 {
		t.Fatal("advisory should still run after a ledger failure")
	}
}

func TestAcceptAnonymousSenderReveal(t *testing.T) {
	transport := &fakeTransport{}
	dir := newFakeDirectory()
	dir.add(100, "alice")
	l := newTestLoop(transport, dir, &fakeLedger{result: ledger.Result{Skipped: true}}, nil)

	l.store.Put(signal.Key{Address: 100, Token: "accept:42"}, signal.Pending{
		ID:      "sig-1",
		Payload: "secret",
		Stage:   signal.StageAwaitingAccept,
	})

	l.handlePress(context.Background(), press(100, "accept:42", 50))

	if len(transport.texts) != 1 {
		t.Fatalf("texts = %+v, want only the reveal", transport.texts)
	}
	if !strings.Contains(transport.texts[0].text, "anonymous") {
		t.Fatalf("reveal %q should mark the sender anonymous", transport.texts[0].text)
	}
}

func TestIgnorePressNotifiesSender(t *testing.T) {
	transport := &fakeTransport{}
	dir := newFakeDirectory()
	dir.add(100, "alice")
	dir.add(200, "bob")
	l := newTestLoop(transport, dir, &fakeLedger{}, nil)

	l.store.Put(signal.Key{Address: 100, Token: "open:42"}, signal.Pending{
		ID:             "sig-1",
		Payload:        "secret",
		SenderHandle:   "bob",
		ImageMessageID: 42,
	})

	l.handlePress(context.Background(), press(100, "ignore:42", 43))

	var senderNote, receipt bool
	for _, s := range transport.texts {
		if s.to == 200 {
			senderNote = true
		}
		if s.to == 100 {
			receipt = true
		}
	}
	if !senderNote {
		t.Fatal("ignore must notify the registered sender")
	}
	if !receipt {
		t.Fatal("recipient must get the decline receipt")
	}
	if _, ok := l.store.Get(signal.Key{Address: 100, Token: "open:42"}); ok {
		t.Fatal("ignored interaction should be removed")
	}
}

func TestDeclineAcceptDoesNotContactSender(t *testing.T) {
	transport := &fakeTransport{}
	dir := newFakeDirectory()
	dir.add(100, "alice")
	dir.add(200, "bob")
	advisor := &fakeAdvisor{text: "never sent"}
	l := newTestLoop(transport, dir, &fakeLedger{}, advisor)

	l.store.Put(signal.Key{Address: 100, Token: "accept:42"}, signal.Pending{
		ID:           "sig-1",
		Payload:      "secret",
		SenderHandle: "bob",
		Stage:        signal.StageAwaitingAccept,
	})

	l.handlePress(context.Background(), press(100, "decline_accept:42", 50))

	for _, s := range transport.texts {
		if s.to == 200 {
			t.Fatalf("sender was contacted on post-open decline: %+v", s)
		}
	}
	if advisor.calls != 0 {
		t.Fatal("post-open decline must not trigger advisory")
	}
}

func TestReplayedPressAcksOnly(t *testing.T) {
	transport := &fakeTransport{}
	dir := newFakeDirectory()
	dir.add(100, "alice")
	l := newTestLoop(transport, dir, &fakeLedger{}, nil)

	l.handlePress(context.Background(), press(100, "accept:42", 50))

	if len(transport.acks) != 1 {
		t.Fatalf("acks = %v, want exactly one", transport.acks)
	}
	if len(transport.texts) != 0 || len(transport.prompts) != 0 {
		t.Fatalf("replay must cause no sends: %v", transport.calls)
	}
}

func TestUnregisteredChatIsGated(t *testing.T) {
	transport := &fakeTransport{}
	dir := newFakeDirectory()
	l := newTestLoop(transport, dir, &fakeLedger{}, nil)

	l.handleChatMessage(context.Background(), signal.Message{Address: 300, SenderHandle: "eve", Text: "hello"})

	if len(transport.prompts) != 1 {
		t.Fatalf("prompts = %+v, want welcome prompt", transport.prompts)
	}
	buttons := transport.prompts[0].buttons
	if len(buttons) != 1 || buttons[0].Token != "register" {
		t.Fatalf("welcome buttons = %+v, want register", buttons)
	}
}

func TestRegisterPressRegistersChat(t *testing.T) {
	transport := &fakeTransport{}
	dir := newFakeDirectory()
	l := newTestLoop(transport, dir, &fakeLedger{}, nil)

	p := press(300, "register", 77)
	l.handlePress(context.Background(), p)

	if !dir.IsRegistered(300) {
		t.Fatal("register press must register the chat")
	}
	if addr, ok := dir.FindAddressByHandle("alice"); !ok || addr != 300 {
		t.Fatalf("handle lookup after registration: %d %v", addr, ok)
	}
	if len(transport.edits) != 1 || !strings.Contains(transport.edits[0].text, "Registration complete") {
		t.Fatalf("edits = %+v, want registration confirmation", transport.edits)
	}
}

func TestRegisteredChatMessageGetsAdvisoryReply(t *testing.T) {
	transport := &fakeTransport{}
	dir := newFakeDirectory()
	dir.add(100, "alice")
	advisor := &fakeAdvisor{text: "The night is young."}
	l := newTestLoop(transport, dir, &fakeLedger{}, advisor)

	l.handleChatMessage(context.Background(), signal.Message{Address: 100, Text: "what now?"})

	if len(transport.texts) != 1 || transport.texts[0].text != "The night is young." {
		t.Fatalf("texts = %+v, want advisory reply", transport.texts)
	}
}

func TestRegisteredChatMessageFallbackOnAdvisorError(t *testing.T) {
	transport := &fakeTransport{}
	dir := newFakeDirectory()
	dir.add(100, "alice")
	advisor := &fakeAdvisor{err: errors.New("model offline")}
	l := newTestLoop(transport, dir, &fakeLedger{}, advisor)

	l.handleChatMessage(context.Background(), signal.Message{Address: 100, Text: "what now?"})

	if len(transport.texts) != 1 || transport.texts[0].text != fallbackChatReply {
		t.Fatalf("texts = %+v, want static fallback", transport.texts)
	}
}

func TestAllowedChatIDFilter(t *testing.T) {
	transport := &fakeTransport{}
	dir := newFakeDirectory()
	cfg := config.DefaultConfig()
	cfg.Telegram.AllowedChatID = 100
	l := NewLoop(cfg, transport, dir, &fakeLedger{}, nil)

	l.handleChatMessage(context.Background(), signal.Message{Address: 999, Text: "hello"})
	l.handlePress(context.Background(), press(999, "open:1", 2))

	if len(transport.calls) != 0 {
		t.Fatalf("filtered chat caused transport calls: %v", transport.calls)
	}
}
