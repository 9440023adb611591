// Package handlers implements the chat commands of the guild bank bot.
package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/guildbank/internal/domain"
	"github.com/Proton-105/guildbank/internal/i18n"
	"github.com/Proton-105/guildbank/internal/ledger"
)

// Handler processes bot commands.
type Handler func(c telebot.Context) error

// Middleware wraps handlers with additional behavior.
type Middleware func(Handler) Handler

// Ledger is the part of ledger.Service the commands use.
type Ledger interface {
	CreateCurrency(ctx context.Context, req ledger.CreateCurrencyRequest) (*domain.Currency, error)
	GetAllCurrenciesForGuild(ctx context.Context, guild string) ([]string, error)
	GetBalances(ctx context.Context, req ledger.GetBalancesRequest) ([]domain.BalanceLine, error)
	TransferFunds(ctx context.Context, req ledger.TransferRequest) (*domain.TransferReceipt, error)
}

// Membership is the part of membership.Service the commands use.
type Membership interface {
	GetUserRoles(ctx context.Context, externalUserID, guild string) ([]string, error)
}

// Guilds is the part of guild.Service the commands use.
type Guilds interface {
	SetSpamChannel(ctx context.Context, guild string, chatID int64, threadID int) error
	SpamChannel(ctx context.Context, guild string) (*domain.GuildChannel, error)
}

// ContextKey is where middlewares store the request context on telebot.Context.
const ContextKey = "request_ctx"

var (
	errUsage     = errors.New("invalid command arguments")
	errGroupOnly = errors.New("command requires a group chat")
)

// RequestContext returns the context stored by the logging middleware.
func RequestContext(c telebot.Context) context.Context {
	if c != nil {
		if ctx, ok := c.Get(ContextKey).(context.Context); ok && ctx != nil {
			return ctx
		}
	}
	return context.Background()
}

// ParseCommand splits message text into the command name, without any
// @botname suffix, and its arguments.
func ParseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}

	cmd := fields[0]
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}

	return strings.ToLower(cmd), fields[1:]
}

// Guild identifies the chat a command was sent in.
func Guild(c telebot.Context) (string, error) {
	chat := c.Chat()
	if chat == nil || (chat.Type != telebot.ChatGroup && chat.Type != telebot.ChatSuperGroup) {
		return "", errGroupOnly
	}
	return strconv.FormatInt(chat.ID, 10), nil
}

// UserRef converts a Telegram user into the ledger's identity reference.
func UserRef(u *telebot.User) domain.UserRef {
	return domain.UserRef{
		ExternalID:  strconv.FormatInt(u.ID, 10),
		DisplayName: DisplayName(u),
	}
}

// DisplayName prefers @username and falls back to the full name.
func DisplayName(u *telebot.User) string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return "@" + u.Username
	}

	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return strconv.FormatInt(u.ID, 10)
	}
	return name
}

func translator(c telebot.Context, manager *i18n.Manager) i18n.Translator {
	lang := ""
	if sender := c.Sender(); sender != nil {
		lang = sender.LanguageCode
	}
	return manager.Translator(lang)
}

// replyTarget returns the author of the message being replied to, if any.
func replyTarget(c telebot.Context) *telebot.User {
	msg := c.Message()
	if msg == nil || msg.ReplyTo == nil {
		return nil
	}
	return msg.ReplyTo.Sender
}
