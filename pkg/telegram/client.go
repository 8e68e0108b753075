// Package telegram adapts the Bot API to the event and effect shapes the
// rest of the system speaks. It owns no state beyond the bot handle; the
// poll cursor belongs to the event loop.
package telegram

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/firstsignal/signalbot/pkg/config"
	"github.com/firstsignal/signalbot/pkg/signal"
)

type Client struct {
	bot *telego.Bot
}

func NewClient(cfg config.TelegramConfig) (*Client, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Client{bot: bot}, nil
}

func (c *Client) Username() string {
	return c.bot.Username()
}

// PollEvents fetches the next batch of updates past cursor, blocking up to
// timeoutSeconds. Updates the adapter cannot classify still come back with
// their UpdateID so the caller's cursor moves past them.
func (c *Client) PollEvents(ctx context.Context, cursor int64, timeoutSeconds int) ([]signal.Event, error) {
	updates, err := c.bot.GetUpdates(ctx, &telego.GetUpdatesParams{
		Offset:  int(cursor),
		Timeout: timeoutSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("getUpdates: %w", err)
	}

	events := make([]signal.Event, 0, len(updates))
	for _, update := range updates {
		events = append(events, classify(update))
	}
	return events, nil
}

func classify(update telego.Update) signal.Event {
	ev := signal.Event{UpdateID: int64(update.UpdateID)}

	if msg := update.Message; msg != nil {
		handle := ""
		if msg.From != nil {
			handle = msg.From.Username
		}
		ev.Message = &signal.Message{
			Address:      signal.Address(msg.Chat.ID),
			SenderHandle: handle,
			Text:         msg.Text,
		}
		return ev
	}

	if cq := update.CallbackQuery; cq != nil {
		var chatID int64
		var messageID int
		if cq.Message != nil {
			chatID = cq.Message.GetChat().ID
			messageID = cq.Message.GetMessageID()
		}
		ev.Press = &signal.ButtonPress{
			Address:         signal.Address(chatID),
			PromptMessageID: messageID,
			PressID:         cq.ID,
			Token:           signal.ParseToken(cq.Data),
			PressingHandle:  cq.From.Username,
		}
		return ev
	}

	return ev
}

// SendText sends a plain message and returns its id.
func (c *Client) SendText(ctx context.Context, to signal.Address, text string) (int, error) {
	msg := tu.Message(tu.ID(int64(to)), text)
	msg.ProtectContent = true

	sent, err := c.bot.SendMessage(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("sendMessage: %w", err)
	}
	return sent.MessageID, nil
}

// SendPrompt sends a message with one row of inline buttons.
func (c *Client) SendPrompt(ctx context.Context, to signal.Address, text string, buttons []signal.Button) (int, error) {
	row := make([]telego.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		row = append(row, tu.InlineKeyboardButton(b.Label).WithCallbackData(b.Token))
	}

	msg := tu.Message(tu.ID(int64(to)), text)
	msg.ProtectContent = true
	msg.ReplyMarkup = tu.InlineKeyboard(tu.InlineKeyboardRow(row...))

	sent, err := c.bot.SendMessage(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("sendMessage (prompt): %w", err)
	}
	return sent.MessageID, nil
}

// SendImage sends a photo by URL and returns its message id.
func (c *Client) SendImage(ctx context.Context, to signal.Address, url string) (int, error) {
	photo := tu.Photo(tu.ID(int64(to)), tu.FileFromURL(url))
	photo.ProtectContent = true

	sent, err := c.bot.SendPhoto(ctx, photo)
	if err != nil {
		return 0, fmt.Errorf("sendPhoto: %w", err)
	}
	return sent.MessageID, nil
}

// EditText rewrites a message, dropping any inline keyboard it carried.
func (c *Client) EditText(ctx context.Context, chat signal.Address, messageID int, text string) error {
	_, err := c.bot.EditMessageText(ctx, tu.EditMessageText(tu.ID(int64(chat)), messageID, text))
	if err != nil {
		return fmt.Errorf("editMessageText: %w", err)
	}
	return nil
}

func (c *Client) DeleteMessage(ctx context.Context, chat signal.Address, messageID int) error {
	err := c.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    tu.ID(int64(chat)),
		MessageID: messageID,
	})
	if err != nil {
		return fmt.Errorf("deleteMessage: %w", err)
	}
	return nil
}

// AcknowledgePress answers a callback query so the client stops spinning.
func (c *Client) AcknowledgePress(ctx context.Context, pressID, text string) error {
	err := c.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{
		CallbackQueryID: pressID,
		Text:            text,
	})
	if err != nil {
		return fmt.Errorf("answerCallbackQuery: %w", err)
	}
	return nil
}
