package handler

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Sender is the part of the Telegram client the messenger needs.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// BotMessenger delivers dialog replies through the Telegram Bot API.
type BotMessenger struct {
	sender Sender
}

func NewBotMessenger(sender Sender) *BotMessenger {
	return &BotMessenger{sender: sender}
}

func (m *BotMessenger) Prompt(ctx context.Context, chatID int64, text string) error {
	return m.send(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
}

// PromptChoice sends text with one inline button per option.
func (m *BotMessenger) PromptChoice(ctx context.Context, chatID int64, text string, options []string) error {
	keyboard := make([][]models.InlineKeyboardButton, 0, len(options))
	for _, opt := range options {
		keyboard = append(keyboard, []models.InlineKeyboardButton{
			{Text: opt, CallbackData: CallbackPrefix + opt},
		})
	}

	return m.send(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: &models.InlineKeyboardMarkup{InlineKeyboard: keyboard},
	})
}

// Notify sends a final message and removes any reply keyboard.
func (m *BotMessenger) Notify(ctx context.Context, chatID int64, text string) error {
	return m.send(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: &models.ReplyKeyboardRemove{RemoveKeyboard: true},
	})
}

func (m *BotMessenger) send(ctx context.Context, params *bot.SendMessageParams) error {
	if _, err := m.sender.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("send message to %v: %w", params.ChatID, err)
	}
	return nil
}
