package loop

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/firstsignal/signalbot/pkg/logger"
	"github.com/firstsignal/signalbot/pkg/signal"
)

var (
	// ErrNoTarget means the request named no recipient at all.
	ErrNoTarget = fmt.Errorf("no target chat id or handle given")
	// ErrTargetNotFound means the handle resolved to no registered chat.
	ErrTargetNotFound = fmt.Errorf("target handle is not registered")
)

// AdmitRequest is a new signal arriving from the admission gateway.
type AdmitRequest struct {
	TargetHandle  string
	TargetAddress signal.Address
	Message       string
	SenderHandle  string
}

// AdmitReceipt reports the message ids created for an admitted signal.
type AdmitReceipt struct {
	SignalID        string
	Address         signal.Address
	ImageMessageID  int
	PromptMessageID int
}

const openPromptText = "Your secret admirer sent you a signal, do you want to decode it?"

const (
	openButtonText   = "Yes ✅"
	ignoreButtonText = "No ❌"
)

// Admit resolves the target, sends the sealed image and the first-stage
// prompt, and parks the interaction keyed by the image's message id. It is
// called from the gateway's request goroutine; the store mutex is the only
// state shared with the event loop.
func (l *Loop) Admit(ctx context.Context, req AdmitRequest) (AdmitReceipt, error) {
	addr := req.TargetAddress
	if addr == 0 {
		handle := strings.TrimSpace(req.TargetHandle)
		if handle == "" {
			return AdmitReceipt{}, ErrNoTarget
		}
		if id, err := strconv.ParseInt(handle, 10, 64); err == nil {
			addr = signal.Address(id)
		} else {
			resolved, ok := l.directory.FindAddressByHandle(handle)
			if !ok {
				return AdmitReceipt{}, fmt.Errorf("%w: %s", ErrTargetNotFound, handle)
			}
			addr = resolved
		}
	}

	signalID := uuid.NewString()

	// The image message id doubles as the correlation id. Without an
	// image the correlation stays 0, which still keys a single pending
	// interaction per chat.
	imageID := 0
	if l.imageURL != "" {
		id, err := l.transport.SendImage(ctx, addr, l.imageURL)
		if err != nil {
			logger.WarnCF("loop", "Failed to send sealed image, continuing without", map[string]interface{}{
				"chat_id": int64(addr),
				"error":   err.Error(),
			})
		} else {
			imageID = id
		}
	}

	buttons := []signal.Button{
		{Label: openButtonText, Token: signal.FormatToken(signal.ActionOpen, imageID)},
		{Label: ignoreButtonText, Token: signal.FormatToken(signal.ActionIgnore, imageID)},
	}
	promptID, err := l.transport.SendPrompt(ctx, addr, openPromptText, buttons)
	if err != nil {
		return AdmitReceipt{}, fmt.Errorf("failed to send signal prompt: %w", err)
	}

	key := signal.Key{
		Address: addr,
		Token:   signal.FormatToken(signal.ActionOpen, imageID),
	}
	l.store.Put(key, signal.Pending{
		ID:              signalID,
		Payload:         req.Message,
		SenderHandle:    strings.TrimPrefix(strings.TrimSpace(req.SenderHandle), "@"),
		ImageMessageID:  imageID,
		PromptMessageID: promptID,
		Stage:           signal.StageAwaitingOpen,
		CreatedAt:       time.Now(),
	})

	logger.InfoCF("loop", "Signal admitted", map[string]interface{}{
		"signal_id": signalID,
		"chat_id":   int64(addr),
	})

	return AdmitReceipt{
		SignalID:        signalID,
		Address:         addr,
		ImageMessageID:  imageID,
		PromptMessageID: promptID,
	}, nil
}
