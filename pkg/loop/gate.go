package loop

import (
	"context"

	"github.com/firstsignal/signalbot/pkg/logger"
	"github.com/firstsignal/signalbot/pkg/signal"
)

const (
	welcomeText        = "Welcome to First Signal! Tap the button below to register and start receiving signals. ⏈"
	registerButtonText = "Register to check"
	registeredText     = "Registration complete ✅"
)

// sendWelcome is the gate for unregistered chats: whatever they sent, they
// get the registration prompt and nothing else.
func (l *Loop) sendWelcome(ctx context.Context, addr signal.Address) {
	buttons := []signal.Button{
		{Label: registerButtonText, Token: signal.FormatToken(signal.ActionRegister, 0)},
	}
	if _, err := l.transport.SendPrompt(ctx, addr, welcomeText, buttons); err != nil {
		logger.ErrorCF("loop", "Failed to send welcome prompt", map[string]interface{}{
			"chat_id": int64(addr),
			"error":   err.Error(),
		})
	}
}

func (l *Loop) handleRegisterPress(ctx context.Context, press signal.ButtonPress) {
	if err := l.directory.Register(press.Address, press.PressingHandle); err != nil {
		logger.ErrorCF("loop", "Registration failed", map[string]interface{}{
			"chat_id": int64(press.Address),
			"error":   err.Error(),
		})
		if ackErr := l.transport.AcknowledgePress(ctx, press.PressID, "Something went wrong, try again."); ackErr != nil {
			logger.WarnC("loop", "Failed to acknowledge register press: "+ackErr.Error())
		}
		return
	}

	logger.InfoCF("loop", "Chat registered", map[string]interface{}{
		"chat_id": int64(press.Address),
		"handle":  press.PressingHandle,
	})

	if err := l.transport.AcknowledgePress(ctx, press.PressID, registeredText); err != nil {
		logger.WarnC("loop", "Failed to acknowledge register press: "+err.Error())
	}
	if press.PromptMessageID != 0 {
		if err := l.transport.EditText(ctx, press.Address, press.PromptMessageID, registeredText); err != nil {
			logger.WarnCF("loop", "Failed to edit welcome prompt", map[string]interface{}{
				"chat_id": int64(press.Address),
				"error":   err.Error(),
			})
		}
	}
}
