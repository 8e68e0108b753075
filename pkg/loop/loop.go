// Package loop drives the approval ritual: it polls the transport, gates
// unregistered chats, feeds button presses to the stage engine and applies
// the resulting effects. Exactly one loop instance runs per deployment; the
// interaction store's mutex is the only synchronization with the admission
// gateway.
package loop

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/firstsignal/signalbot/pkg/config"
	"github.com/firstsignal/signalbot/pkg/ledger"
	"github.com/firstsignal/signalbot/pkg/logger"
	"github.com/firstsignal/signalbot/pkg/signal"
	"github.com/firstsignal/signalbot/pkg/utils"
)

// Transport is the slice of the chat API the loop consumes.
type Transport interface {
	PollEvents(ctx context.Context, cursor int64, timeoutSeconds int) ([]signal.Event, error)
	SendText(ctx context.Context, to signal.Address, text string) (int, error)
	SendPrompt(ctx context.Context, to signal.Address, text string, buttons []signal.Button) (int, error)
	SendImage(ctx context.Context, to signal.Address, url string) (int, error)
	EditText(ctx context.Context, chat signal.Address, messageID int, text string) error
	DeleteMessage(ctx context.Context, chat signal.Address, messageID int) error
	AcknowledgePress(ctx context.Context, pressID, text string) error
}

// Directory is the registered-identity lookup the loop consumes.
type Directory interface {
	IsRegistered(addr signal.Address) bool
	Register(addr signal.Address, handle string) error
	FindAddressByHandle(handle string) (signal.Address, bool)
	HandleByAddress(addr signal.Address) (string, bool)
}

// Ledger archives accepted payloads. Result-typed, never error-typed: a
// ledger failure is a degraded message, not a failed flow.
type Ledger interface {
	Store(ctx context.Context, signalID, message string) ledger.Result
}

// Advisor generates advisory text. May be absent entirely.
type Advisor interface {
	Generate(ctx context.Context, contextText string) (string, error)
}

type Loop struct {
	transport Transport
	directory Directory
	ledger    Ledger
	advisor   Advisor
	store     *signal.Store

	allowedChatID int64
	pollTimeout   int
	imageURL      string
	sweepCron     string
	sweepMaxAge   time.Duration

	cursor  int64
	running atomic.Bool
}

func NewLoop(cfg *config.Config, transport Transport, dir Directory, led Ledger, advisor Advisor) *Loop {
	pollTimeout := cfg.Telegram.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 50
	}

	return &Loop{
		transport:     transport,
		directory:     dir,
		ledger:        led,
		advisor:       advisor,
		store:         signal.NewStore(),
		allowedChatID: cfg.Telegram.AllowedChatID,
		pollTimeout:   pollTimeout,
		imageURL:      cfg.Flow.ImageURL,
		sweepCron:     cfg.Flow.SweepCron,
		sweepMaxAge:   time.Duration(cfg.Flow.SweepMaxAgeHours) * time.Hour,
	}
}

// Store exposes the interaction store for inspection. The loop remains its
// owner; callers must not hold entries across calls.
func (l *Loop) Store() *signal.Store {
	return l.store
}

// Run polls until ctx is cancelled. Poll errors are logged and retried on
// the next iteration; nothing inside an iteration is fatal.
func (l *Loop) Run(ctx context.Context) error {
	l.running.Store(true)
	defer l.running.Store(false)

	logger.InfoC("loop", "Starting event loop (long polling)...")

	if l.sweepCron != "" {
		go l.runSweeper(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		events, err := l.transport.PollEvents(ctx, l.cursor, l.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.ErrorCF("loop", "Poll failed", map[string]interface{}{
				"error": err.Error(),
			})
			time.Sleep(time.Second)
			continue
		}

		for _, ev := range events {
			// Advance past the event before touching it: a crash
			// mid-dispatch must not replay the same event forever.
			if ev.UpdateID >= l.cursor {
				l.cursor = ev.UpdateID + 1
			}
			l.dispatch(ctx, ev)
		}
	}
}

func (l *Loop) IsRunning() bool {
	return l.running.Load()
}

func (l *Loop) dispatch(ctx context.Context, ev signal.Event) {
	switch {
	case ev.Press != nil:
		l.handlePress(ctx, *ev.Press)
	case ev.Message != nil:
		l.handleChatMessage(ctx, *ev.Message)
	default:
		logger.DebugCF("loop", "Skipping unrecognized update", map[string]interface{}{
			"update_id": ev.UpdateID,
		})
	}
}

func (l *Loop) allowed(addr signal.Address) bool {
	return l.allowedChatID == 0 || int64(addr) == l.allowedChatID
}

func (l *Loop) handlePress(ctx context.Context, press signal.ButtonPress) {
	if !l.allowed(press.Address) {
		return
	}

	if press.Token.Action == signal.ActionRegister {
		l.handleRegisterPress(ctx, press)
		return
	}

	if !l.directory.IsRegistered(press.Address) {
		if err := l.transport.AcknowledgePress(ctx, press.PressID, ""); err != nil {
			logger.WarnCF("loop", "Failed to acknowledge press from unregistered chat", map[string]interface{}{
				"error": err.Error(),
			})
		}
		l.sendWelcome(ctx, press.Address)
		return
	}

	decision := signal.Decide(press, l.store.Get)
	l.applyDecision(ctx, press, decision)
}

func (l *Loop) handleChatMessage(ctx context.Context, msg signal.Message) {
	if !l.allowed(msg.Address) {
		return
	}

	if !l.directory.IsRegistered(msg.Address) {
		l.sendWelcome(ctx, msg.Address)
		return
	}

	logger.DebugCF("loop", "Chat message from registered chat", map[string]interface{}{
		"chat_id": int64(msg.Address),
		"preview": utils.Truncate(msg.Text, 50),
	})

	reply := fallbackChatReply
	if l.advisor != nil {
		if text, err := l.advisor.Generate(ctx, msg.Text); err == nil {
			reply = text
		} else {
			logger.WarnCF("loop", "Advisory reply failed, using fallback", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	if _, err := l.transport.SendText(ctx, msg.Address, reply); err != nil {
		logger.ErrorCF("loop", "Failed to send chat reply", map[string]interface{}{
			"chat_id": int64(msg.Address),
			"error":   err.Error(),
		})
	}
}

const fallbackChatReply = "The signal keeper is listening. Send a signal from the app and it will find its way."
