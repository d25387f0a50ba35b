// Package bot реализует Telegram-бота магазина KAVARA.
package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/zap"
)

// Registrar регистрирует пользователя и связывает его с пригласившим.
type Registrar interface {
	RegisterTelegramUser(ctx context.Context, telegramID int64, username *string, firstName, referralCode string) error
}

// Bot принимает команды пользователей и отправляет им уведомления.
type Bot struct {
	instance  *telego.Bot
	registrar Registrar
	logger    *zap.Logger
}

// NewBot создаёт Telegram-бота для указанного токена.
func NewBot(token string, registrar Registrar, logger *zap.Logger) (*Bot, error) {
	instance, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	return &Bot{
		instance:  instance,
		registrar: registrar,
		logger:    logger,
	}, nil
}

// Run запускает long polling и обрабатывает обновления до отмены контекста.
func (b *Bot) Run(ctx context.Context) error {
	updates, err := b.instance.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	handler, err := th.NewBotHandler(b.instance, updates)
	if err != nil {
		return fmt.Errorf("create bot handler: %w", err)
	}

	handler.Handle(b.handleStart, th.CommandEqual("start"))

	go func() {
		<-ctx.Done()
		handler.Stop()
	}()

	handler.Start()

	return nil
}

// handleStart обрабатывает /start. Аргумент команды — реферальный код
// из ссылки-приглашения t.me/<bot>?start=<код>.
func (b *Bot) handleStart(ctx *th.Context, update telego.Update) error {
	message := update.Message
	telegramID := message.From.ID

	referralCode := ""
	if parts := strings.Split(message.Text, " "); len(parts) > 1 {
		referralCode = parts[1]
	}

	var username *string
	if message.From.Username != "" {
		username = &message.From.Username
	}

	err := b.registrar.RegisterTelegramUser(ctx.Context(), telegramID, username, message.From.FirstName, referralCode)
	if err != nil {
		b.logger.Error("register telegram user", zap.Error(err), zap.Int64("telegramID", telegramID))
		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(
			tu.ID(message.Chat.ID),
			"Что-то пошло не так, попробуйте ещё раз позже.",
		))
		return nil
	}

	_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(
		tu.ID(message.Chat.ID),
		fmt.Sprintf("Привет, %s! 👋\n\nДобро пожаловать в KAVARA. Открывайте магазин кнопкой меню, копите баллы и приглашайте друзей.", message.From.FirstName),
	))

	return nil
}

// SendMessage отправляет текстовое сообщение в указанный чат.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := b.instance.SendMessage(ctx, tu.Message(tu.ID(chatID), text))
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	return nil
}
