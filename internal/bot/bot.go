package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/recipebot/internal/assistant"
	"github.com/xaenox/recipebot/internal/conversation"
	"github.com/xaenox/recipebot/internal/models"
	"github.com/xaenox/recipebot/internal/storage"
	"go.uber.org/zap"
)

// historyTurns is how many turns /history shows.
const historyTurns = 6

type Assistant interface {
	HandleTurn(ctx context.Context, req assistant.TurnRequest) (*assistant.TurnResult, error)
	GetHistory(ctx context.Context, ownerID, conversationID string) ([]models.Turn, error)
	DeleteConversation(ctx context.Context, ownerID, conversationID string) (bool, error)
}

// Sender is the part of the Telegram API the bot writes through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Bot struct {
	api       *tgbotapi.BotAPI
	sender    Sender
	assistant Assistant
	threads   storage.ThreadStorage
	users     *conversation.KeyedMutex
	logger    *zap.Logger
}

func New(token string, a Assistant, threads storage.ThreadStorage, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := newBot(api, a, threads, logger)
	b.api = api
	return b, nil
}

func newBot(sender Sender, a Assistant, threads storage.ThreadStorage, logger *zap.Logger) *Bot {
	return &Bot{
		sender:    sender,
		assistant: a,
		threads:   threads,
		users:     conversation.NewKeyedMutex(),
		logger:    logger.Named("bot"),
	}
}

// Start long-polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("Telegram bot started", zap.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			go b.handleMessage(ctx, update.Message)
		}
	}
}

// OwnerID is the owner identity used for a Telegram user.
func OwnerID(userID int64) string {
	return "tg:" + strconv.FormatInt(userID, 10)
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.From == nil {
		return
	}

	// One message per user at a time.
	unlock := b.users.Lock(OwnerID(message.From.ID))
	defer unlock()

	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	content := message.Text
	if message.Caption != "" {
		content = message.Caption
	}
	if strings.TrimSpace(content) == "" {
		b.sendMessage(message.Chat.ID, "Send me a text message describing what you'd like to cook.")
		return
	}

	userID := message.From.ID
	active, err := b.threads.GetThread(ctx, userID)
	if err != nil {
		b.logger.Error("Failed to load active conversation",
			zap.Error(err),
			zap.Int64("user_id", userID))
	}

	res, err := b.assistant.HandleTurn(ctx, assistant.TurnRequest{
		OwnerID:        OwnerID(userID),
		Utterance:      content,
		ConversationID: active,
	})
	if errors.Is(err, conversation.ErrNotAccessible) && active != "" {
		// The remembered conversation is gone; start over.
		b.forgetThread(ctx, userID)
		res, err = b.assistant.HandleTurn(ctx, assistant.TurnRequest{
			OwnerID:   OwnerID(userID),
			Utterance: content,
		})
	}
	if err != nil {
		b.logger.Error("Failed to handle turn",
			zap.Error(err),
			zap.Int64("user_id", userID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't answer that right now. Please try again.")
		return
	}

	if res.NewConversation {
		if err := b.threads.SaveThread(ctx, userID, res.ConversationID); err != nil {
			b.logger.Error("Failed to save active conversation",
				zap.Error(err),
				zap.Int64("user_id", userID),
				zap.String("conversation_id", res.ConversationID))
		}
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, formatReply(res.Response, res.Items))
	msg.ParseMode = "MarkdownV2"
	msg.ReplyToMessageID = message.MessageID
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send reply",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(message)
	case "help":
		b.handleHelp(message)
	case "new":
		b.handleNew(ctx, message)
	case "history":
		b.handleHistory(ctx, message)
	case "delete":
		b.handleDelete(ctx, message)
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleStart(message *tgbotapi.Message) {
	welcome := `Welcome to RecipeBot! 🍳
Tell me what you have in the fridge, how much time you've got or what diet you follow, and I'll suggest recipes from our catalog.

Use /help to see all available commands.`

	b.sendMessage(message.Chat.ID, welcome)
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `Available commands:
/start - Start the bot
/help - Show this help message
/new - Start a new conversation
/history - Show the latest messages of this conversation
/delete - Delete this conversation

Examples:
- I have chicken, rice and broccoli
- Something vegan under 30 minutes
- An easy Italian dinner for 4`

	b.sendMessage(message.Chat.ID, help)
}

func (b *Bot) handleNew(ctx context.Context, message *tgbotapi.Message) {
	b.forgetThread(ctx, message.From.ID)
	b.sendMessage(message.Chat.ID, "Started a new conversation. What would you like to cook?")
}

func (b *Bot) handleHistory(ctx context.Context, message *tgbotapi.Message) {
	active := b.activeThread(ctx, message)
	if active == "" {
		b.sendMessage(message.Chat.ID, "You don't have an active conversation yet.")
		return
	}

	turns, err := b.assistant.GetHistory(ctx, OwnerID(message.From.ID), active)
	if errors.Is(err, conversation.ErrNotAccessible) {
		b.forgetThread(ctx, message.From.ID)
		b.sendMessage(message.Chat.ID, "You don't have an active conversation yet.")
		return
	}
	if err != nil {
		b.logger.Error("Failed to get history",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't retrieve your conversation history.")
		return
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, formatHistory(turns, historyTurns))
	msg.ParseMode = "MarkdownV2"
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send history message",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

func (b *Bot) handleDelete(ctx context.Context, message *tgbotapi.Message) {
	active := b.activeThread(ctx, message)
	if active == "" {
		b.sendMessage(message.Chat.ID, "There is no conversation to delete.")
		return
	}

	_, err := b.assistant.DeleteConversation(ctx, OwnerID(message.From.ID), active)
	if err != nil && !errors.Is(err, conversation.ErrNotAccessible) {
		b.logger.Error("Failed to delete conversation",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID),
			zap.String("conversation_id", active))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't delete the conversation. Please try again.")
		return
	}

	b.forgetThread(ctx, message.From.ID)
	b.sendMessage(message.Chat.ID, "Conversation deleted.")
}

func (b *Bot) activeThread(ctx context.Context, message *tgbotapi.Message) string {
	active, err := b.threads.GetThread(ctx, message.From.ID)
	if err != nil {
		b.logger.Error("Failed to load active conversation",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
	}
	return active
}

func (b *Bot) forgetThread(ctx context.Context, userID int64) {
	if err := b.threads.DeleteThread(ctx, userID); err != nil {
		b.logger.Error("Failed to reset active conversation",
			zap.Error(err),
			zap.Int64("user_id", userID))
	}
}

// formatReply renders the answer followed by the recipes it was grounded on.
func formatReply(response string, items []models.Item) string {
	text := escapeMarkdown(response)
	if len(items) == 0 {
		return text
	}

	text += "\n\n*Recipes:*\n"
	for _, item := range items {
		line := "• " + escapeMarkdown(item.Title)
		if item.AverageRating > 0 {
			line += escapeMarkdown(fmt.Sprintf(" (%.1f★)", item.AverageRating))
		}
		text += line + "\n"
	}
	return strings.TrimRight(text, "\n")
}

func formatHistory(turns []models.Turn, limit int) string {
	if len(turns) == 0 {
		return escapeMarkdown("This conversation is empty.")
	}
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}

	response := "*Recent messages:*\n\n"
	for _, turn := range turns {
		author := "You"
		if turn.Role == models.RoleAssistant {
			author = "RecipeBot"
		}
		response += fmt.Sprintf("*%s:* %s\n", author, escapeMarkdown(turn.Content))
		if len(turn.Items) > 0 {
			titles := make([]string, len(turn.Items))
			for i, item := range turn.Items {
				titles[i] = escapeMarkdown(item.Title)
			}
			response += fmt.Sprintf("_%s_\n", strings.Join(titles, ", "))
		}
		response += "\n"
	}
	return strings.TrimRight(response, "\n")
}

// escapeMarkdown escapes special characters for MarkdownV2.
func escapeMarkdown(text string) string {
	specialChars := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
