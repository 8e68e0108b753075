package loop

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/firstsignal/signalbot/pkg/ledger"
	"github.com/firstsignal/signalbot/pkg/logger"
	"github.com/firstsignal/signalbot/pkg/signal"
)

// EffectResult records the outcome of a single applied effect.
type EffectResult struct {
	Effect string
	Err    error
}

const (
	acceptPromptText = "Do you accept this signal?"

	acceptButtonText  = "Accept ✅"
	declineButtonText = "Decline ❌"

	fallbackAdviceText = "Your signal was accepted. ✅"
)

// applyDecision acknowledges the press and then applies every effect in
// order. One failed effect never stops the rest; the store mutation runs
// last so a stage move can pick up the accept prompt's message id.
func (l *Loop) applyDecision(ctx context.Context, press signal.ButtonPress, d signal.Decision) {
	// Ack first, even for a replayed press, so the client never hangs on
	// a spinner.
	if err := l.transport.AcknowledgePress(ctx, press.PressID, d.Ack); err != nil {
		logger.WarnCF("loop", "Failed to acknowledge press", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if d.Op.Kind == signal.OpNone && len(d.Effects) == 0 {
		logger.DebugCF("loop", "Press had no pending interaction, acknowledged only", map[string]interface{}{
			"chat_id": int64(press.Address),
			"token":   press.Token.String(),
		})
		return
	}

	var (
		results        []EffectResult
		ledgerResult   *ledger.Result
		acceptPromptID int
	)

	for _, eff := range d.Effects {
		var err error
		switch e := eff.(type) {
		case signal.DeleteMessage:
			err = l.transport.DeleteMessage(ctx, e.Chat, e.MessageID)
		case signal.SendText:
			_, err = l.transport.SendText(ctx, e.To, e.Text)
		case signal.SendAcceptPrompt:
			var id int
			id, err = l.sendAcceptPrompt(ctx, e)
			if err == nil {
				acceptPromptID = id
			}
		case signal.EditText:
			err = l.transport.EditText(ctx, e.Chat, e.MessageID, e.Text)
		case signal.StoreLedger:
			res := l.ledger.Store(ctx, e.SignalID, e.Payload)
			ledgerResult = &res
			if res.Err != "" {
				err = errors.New(res.Err)
			}
		case signal.Notify:
			err = l.sendToHandle(ctx, e.Handle, e.Text)
		case signal.Reveal:
			_, err = l.transport.SendText(ctx, e.To, revealText(e, ledgerResult))
		case signal.Advise:
			err = l.adviseSender(ctx, e.Handle, e.Context)
		}
		results = append(results, EffectResult{Effect: effectName(eff), Err: err})
	}

	switch d.Op.Kind {
	case signal.OpRemove:
		l.store.Remove(d.Op.Key)
	case signal.OpMove:
		entry := d.Op.Entry
		entry.PromptMessageID = acceptPromptID
		if !l.store.Move(d.Op.Key, d.Op.NewKey, entry) {
			logger.WarnCF("loop", "Stage advance raced with eviction", map[string]interface{}{
				"key": d.Op.Key.Token,
			})
		}
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			logger.WarnCF("loop", "Effect failed", map[string]interface{}{
				"effect": r.Effect,
				"error":  r.Err.Error(),
			})
		}
	}
	logger.InfoCF("loop", "Press handled", map[string]interface{}{
		"chat_id": int64(press.Address),
		"action":  press.Token.Action.String(),
		"effects": len(results),
		"failed":  failed,
	})
}

func (l *Loop) sendAcceptPrompt(ctx context.Context, e signal.SendAcceptPrompt) (int, error) {
	buttons := []signal.Button{
		{Label: acceptButtonText, Token: signal.FormatToken(signal.ActionAccept, e.Correlation)},
		{Label: declineButtonText, Token: signal.FormatToken(signal.ActionDeclineAccept, e.Correlation)},
	}
	text := e.Payload + "\n\n" + acceptPromptText
	return l.transport.SendPrompt(ctx, e.To, text, buttons)
}

// sendToHandle resolves a sender handle through the directory and delivers
// text to the resolved chat. An unregistered sender is silently skipped.
func (l *Loop) sendToHandle(ctx context.Context, handle, text string) error {
	if handle == "" {
		return nil
	}
	addr, ok := l.directory.FindAddressByHandle(handle)
	if !ok {
		logger.DebugCF("loop", "Sender not registered, notification skipped", map[string]interface{}{
			"handle": handle,
		})
		return nil
	}
	_, err := l.transport.SendText(ctx, addr, text)
	return err
}

func (l *Loop) adviseSender(ctx context.Context, handle, contextText string) error {
	text := fallbackAdviceText
	if l.advisor != nil {
		generated, err := l.advisor.Generate(ctx, contextText)
		if err != nil {
			logger.WarnCF("loop", "Advisory generation failed, using fallback", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			text = generated
		}
	}
	return l.sendToHandle(ctx, handle, text)
}

// revealText composes the disclosure message. The ledger outcome decorates
// the text but never gates the reveal itself.
func revealText(e signal.Reveal, lr *ledger.Result) string {
	var sender string
	if e.SenderHandle != "" {
		sender = "Signal sent by @" + strings.TrimPrefix(e.SenderHandle, "@")
	} else {
		sender = "The sender chose to stay anonymous."
	}

	status := "Message decoded ✅"
	switch {
	case lr == nil || lr.Skipped:
	case lr.Success:
		status = fmt.Sprintf("Message decoded & archived ✅\n🔗 %s", ledger.ShortRef(lr.Reference))
	default:
		status = "Message decoded ⚠️ (archive error)"
	}

	return status + "\n\n" + sender
}

func effectName(e signal.Effect) string {
	switch e.(type) {
	case signal.SendText:
		return "send_text"
	case signal.SendAcceptPrompt:
		return "send_accept_prompt"
	case signal.DeleteMessage:
		return "delete_message"
	case signal.EditText:
		return "edit_text"
	case signal.StoreLedger:
		return "store_ledger"
	case signal.Notify:
		return "notify"
	case signal.Reveal:
		return "reveal"
	case signal.Advise:
		return "advise"
	default:
		return "unknown"
	}
}
