package bot

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/guildbank/internal/bot/handlers"
	"github.com/Proton-105/guildbank/internal/domain"
	errors "github.com/Proton-105/guildbank/internal/errors"
	"github.com/Proton-105/guildbank/internal/i18n"
	"github.com/Proton-105/guildbank/internal/ledger"
	"github.com/Proton-105/guildbank/pkg/logger"
	"github.com/Proton-105/guildbank/pkg/metrics"
)

const reactionTimeout = 10 * time.Second

// reactionUpdates are the update types the bot subscribes to when reactions
// are on. Telegram leaves message_reaction out unless asked for it.
var reactionUpdates = []string{"message", "message_reaction"}

type sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// Reactions pays one coin to the author of a group message each time someone
// reacts to it with a currency emoji of that group.
type Reactions struct {
	ledger     handlers.Ledger
	guilds     handlers.Guilds
	authors    MessageAuthors
	messages   *i18n.Manager
	errHandler *errors.Handler
	sender     sender
	log        *slog.Logger
}

func newReactions(deps Deps, log *slog.Logger) *Reactions {
	return &Reactions{
		ledger:     deps.Ledger,
		guilds:     deps.Guilds,
		authors:    deps.Authors,
		messages:   deps.Messages,
		errHandler: deps.ErrHandler,
		log:        log,
	}
}

// Filter sits in front of the poller. It records message authors, consumes
// reaction updates and lets everything else through.
func (r *Reactions) Filter(upd *telebot.Update) bool {
	if upd.MessageReaction != nil {
		ctx, cancel := context.WithTimeout(logger.NewCorrelationID(context.Background()), reactionTimeout)
		defer cancel()
		r.Handle(ctx, upd.MessageReaction)
		return false
	}

	if msg := upd.Message; msg != nil {
		r.remember(msg)
	}
	return true
}

func (r *Reactions) remember(msg *telebot.Message) {
	if msg.Sender == nil || msg.Sender.IsBot || !isGroup(msg.Chat) {
		return
	}

	if err := r.authors.Remember(context.Background(), msg.Chat.ID, msg.ID, handlers.UserRef(msg.Sender)); err != nil {
		r.log.Warn("failed to remember message author",
			slog.Int64("chat_id", msg.Chat.ID),
			slog.Int("message_id", msg.ID),
			slog.Any("error", err),
		)
	}
}

// Handle transfers one coin per newly added currency emoji.
func (r *Reactions) Handle(ctx context.Context, reaction *telebot.MessageReaction) {
	if reaction.User == nil || reaction.User.IsBot || !isGroup(reaction.Chat) {
		return
	}
	added := addedEmojis(reaction.OldReaction, reaction.NewReaction)
	if len(added) == 0 {
		return
	}

	guild := strconv.FormatInt(reaction.Chat.ID, 10)
	currencies, err := r.ledger.GetAllCurrenciesForGuild(ctx, guild)
	if err != nil {
		r.errHandler.Handle(ctx, err)
		return
	}
	registered := make(map[string]struct{}, len(currencies))
	for _, emoji := range currencies {
		registered[emoji] = struct{}{}
	}

	var author *domain.UserRef
	for _, emoji := range added {
		if _, ok := registered[emoji]; !ok {
			continue
		}

		if author == nil {
			if author, err = r.authors.Author(ctx, reaction.Chat.ID, reaction.MessageID); err != nil {
				r.errHandler.Handle(ctx, err)
				return
			}
			if author == nil {
				r.log.DebugContext(ctx, "reaction on a message with unknown author",
					slog.String("guild", guild),
					slog.Int("message_id", reaction.MessageID),
				)
				return
			}
		}

		r.transfer(ctx, reaction, guild, emoji, *author)
	}
}

func (r *Reactions) transfer(ctx context.Context, reaction *telebot.MessageReaction, guild, emoji string, author domain.UserRef) {
	start := time.Now()
	t := r.messages.Translator(reaction.User.LanguageCode)
	reactor := handlers.UserRef(reaction.User)

	_, err := r.ledger.TransferFunds(ctx, ledger.TransferRequest{
		Sender:    reactor,
		Recipient: author,
		Amount:    1,
		Emoji:     emoji,
		Guild:     guild,
	})
	if err != nil {
		var appErr *errors.AppError
		status := "error"
		if stdErrors.As(err, &appErr) {
			status = appErr.Code
		}
		metrics.RecordCommand("reaction", status, time.Since(start))

		msg, _ := r.errHandler.Handle(ctx, err)
		if appErr != nil && appErr.Severity == errors.SeverityLow {
			r.reply(ctx, reaction, guild, msg)
		}
		return
	}

	metrics.RecordCommand("reaction", "ok", time.Since(start))
	r.reply(ctx, reaction, guild, t.Tf("reaction.ok", reactor.DisplayName, emoji, author.DisplayName))
}

// reply posts text to the guild's spam channel with a link back to the
// message, or as a reply to the message when no spam channel is set.
func (r *Reactions) reply(ctx context.Context, reaction *telebot.MessageReaction, guild, text string) {
	var to telebot.Recipient = reaction.Chat
	opts := &telebot.SendOptions{ReplyTo: &telebot.Message{ID: reaction.MessageID, Chat: reaction.Chat}}

	if r.guilds != nil {
		channel, err := r.guilds.SpamChannel(ctx, guild)
		if err != nil {
			r.errHandler.Handle(ctx, err)
		}
		if channel != nil {
			to = &telebot.Chat{ID: channel.ChatID}
			opts = &telebot.SendOptions{ThreadID: channel.ThreadID}
			text = messageLink(reaction.Chat, reaction.MessageID) + " -> " + text
		}
	}

	if _, err := r.sender.Send(to, text, opts); err != nil {
		r.log.ErrorContext(ctx, "failed to send reaction reply", slog.String("guild", guild), slog.Any("error", err))
	}
}

// addedEmojis returns the plain emojis in next that were not in prev.
func addedEmojis(prev, next []telebot.Reaction) []string {
	had := make(map[string]struct{}, len(prev))
	for _, r := range prev {
		had[r.Emoji] = struct{}{}
	}

	var added []string
	for _, r := range next {
		if r.Type != "emoji" || r.Emoji == "" {
			continue
		}
		if _, ok := had[r.Emoji]; ok {
			continue
		}
		had[r.Emoji] = struct{}{}
		added = append(added, r.Emoji)
	}
	return added
}

// messageLink builds the t.me link of a group message.
func messageLink(chat *telebot.Chat, messageID int) string {
	if chat.Username != "" {
		return fmt.Sprintf("https://t.me/%s/%d", chat.Username, messageID)
	}
	return fmt.Sprintf("https://t.me/c/%s/%d", strings.TrimPrefix(strconv.FormatInt(chat.ID, 10), "-100"), messageID)
}

func isGroup(chat *telebot.Chat) bool {
	return chat != nil && (chat.Type == telebot.ChatGroup || chat.Type == telebot.ChatSuperGroup)
}
