package bot

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/guildbank/internal/bot/bottest"
	"github.com/Proton-105/guildbank/internal/bot/handlers"
	guildsvc "github.com/Proton-105/guildbank/internal/guild"
	"github.com/Proton-105/guildbank/internal/i18n"
	"github.com/Proton-105/guildbank/internal/idempotency"
	"github.com/Proton-105/guildbank/internal/ledger"
	"github.com/Proton-105/guildbank/internal/membership"
	"github.com/Proton-105/guildbank/internal/repository/memstore"
	"github.com/Proton-105/guildbank/pkg/config"
	"github.com/Proton-105/guildbank/pkg/logger"
)

var (
	alice = &telebot.User{ID: 1, Username: "alice", LanguageCode: "en"}
	bob   = &telebot.User{ID: 2, Username: "bob"}
	guild = strconv.FormatInt(bottest.GroupChatID, 10)
)

func newTestBot(t *testing.T) (*Bot, *memstore.Store) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	messages, err := i18n.Load("en")
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := memstore.New()
	b, err := newBot(config.BotConfig{Mode: "polling", Timeout: time.Second}, Deps{
		Ledger:         ledger.NewService(store, log),
		Membership:     membership.NewService(store, log),
		Guilds:         guildsvc.NewService(store, log),
		Authors:        NewRedisAuthors(client, time.Hour),
		Messages:       messages,
		Idempotency:    idempotency.NewManager(idempotency.NewRedisStore(client, log), log),
		IdempotencyTTL: time.Hour,
	}, log, true)
	require.NoError(t, err)

	return b, store
}

func message(id int, from *telebot.User, text string) *bottest.Context {
	return bottest.NewContext(&telebot.Message{
		ID:     id,
		Sender: from,
		Chat:   &telebot.Chat{ID: bottest.GroupChatID, Type: telebot.ChatSuperGroup},
		Text:   text,
	})
}

func TestBot_CreateSendBalance(t *testing.T) {
	b, store := newTestBot(t)

	create := message(1, alice, "/create 🪙 1000 gold")
	require.NoError(t, b.router.Route(create))
	assert.Contains(t, create.LastReply(), "Created 🪙 gold")

	send := message(2, alice, "/send 250 🪙").InReplyTo(bob)
	require.NoError(t, b.router.Route(send))
	assert.Contains(t, send.LastReply(), "@alice sent 250 🪙 to @bob")

	amount, ok := store.Balance("2", guild, "🪙")
	require.True(t, ok)
	assert.Equal(t, int64(250), amount)

	balance := message(3, alice, "/balance@guildbank_bot")
	require.NoError(t, b.router.Route(balance))
	assert.Contains(t, balance.LastReply(), "@alice")
	assert.Contains(t, balance.LastReply(), "750")
}

func TestBot_DomainErrorsBecomeReplies(t *testing.T) {
	b, _ := newTestBot(t)

	send := message(1, alice, "/send 5 🍎").InReplyTo(bob)
	require.NoError(t, b.router.Route(send))
	assert.Equal(t, "(╯°□°）╯︵ 🍎 is not a currency here", send.LastReply())

	self := message(2, alice, "/send 5 🍎").InReplyTo(alice)
	require.NoError(t, b.router.Route(self))
	assert.Equal(t, "Don't be a weasel, you cannot pay yourself", self.LastReply())
}

func TestBot_RedeliveredUpdateRunsOnce(t *testing.T) {
	b, store := newTestBot(t)
	require.NoError(t, b.router.Route(message(1, alice, "/create 🪙 1000 gold")))

	for i := 0; i < 2; i++ {
		require.NoError(t, b.router.Route(message(2, alice, "/send 100 🪙").InReplyTo(bob)))
	}

	amount, _ := store.Balance("1", guild, "🪙")
	assert.Equal(t, int64(900), amount)
}

func TestBot_IgnoresPlainTextAndUnknownCommands(t *testing.T) {
	b, _ := newTestBot(t)

	plain := message(1, alice, "just chatting")
	require.NoError(t, b.router.Route(plain))
	assert.Empty(t, plain.Replies())

	unknown := message(2, alice, "/frobnicate")
	require.NoError(t, b.router.Route(unknown))
	assert.Empty(t, unknown.Replies())
}

func TestRouter_RecoversFromPanic(t *testing.T) {
	r := NewRouter(nil)
	r.Use(RecoveryMiddleware(nil, nil))
	r.Use(LoggingMiddleware(nil))
	r.RegisterCommand("/boom", func(telebot.Context) error { panic("kaboom") })

	c := message(1, alice, "/boom")
	require.NoError(t, r.Route(c))
	assert.Equal(t, fallbackUserMessage, c.LastReply())
}

func TestLoggingMiddleware_StoresCorrelationID(t *testing.T) {
	var seen string
	h := LoggingMiddleware(nil)(func(c telebot.Context) error {
		seen = logger.CorrelationIDFromContext(handlers.RequestContext(c))
		return nil
	})

	require.NoError(t, h(message(1, alice, "/help")))
	assert.NotEmpty(t, seen)
}

func TestMenu(t *testing.T) {
	b, _ := newTestBot(t)

	commands := b.menu()
	require.Len(t, commands, len(commandDescriptions))
	assert.Equal(t, "create", commands[0].Text)
}

func TestMenu_HidesUnregisteredCommands(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	b, err := newBot(config.BotConfig{Mode: "polling"}, Deps{
		Ledger: ledger.NewService(memstore.New(), log),
	}, log, true)
	require.NoError(t, err)

	for _, cmd := range b.menu() {
		assert.NotEqual(t, "roles", cmd.Text)
		assert.NotEqual(t, "spamchannel", cmd.Text)
	}
	assert.False(t, b.router.Has(CommandRoles))
	assert.IsType(t, &telebot.LongPoller{}, b.telebot.Poller)
}

func TestBot_ReactionsFilterThePoller(t *testing.T) {
	b, _ := newTestBot(t)

	poller, ok := b.telebot.Poller.(*telebot.MiddlewarePoller)
	require.True(t, ok)
	long, ok := poller.Poller.(*telebot.LongPoller)
	require.True(t, ok)
	assert.Contains(t, long.AllowedUpdates, "message_reaction")
	assert.Same(t, b.telebot, b.reactions.sender)
}

func TestBot_SpamChannelCommand(t *testing.T) {
	b, _ := newTestBot(t)

	c := message(1, alice, "/spamchannel")
	c.Message().ThreadID = 77
	require.NoError(t, b.router.Route(c))
	assert.Equal(t, "Reaction payment notices will be posted here.", c.LastReply())

	channel, err := b.deps.Guilds.SpamChannel(context.Background(), guild)
	require.NoError(t, err)
	require.NotNil(t, channel)
	assert.Equal(t, bottest.GroupChatID, channel.ChatID)
	assert.Equal(t, 77, channel.ThreadID)
}

func TestRouter_MiddlewareOrder(t *testing.T) {
	var trace []string
	tag := func(name string) handlers.Middleware {
		return func(next handlers.Handler) handlers.Handler {
			return func(c telebot.Context) error {
				trace = append(trace, name)
				return next(c)
			}
		}
	}

	r := NewRouter(nil)
	r.Use(tag("outer"))
	r.RegisterCommand("/ping", func(telebot.Context) error {
		trace = append(trace, "handler")
		return nil
	})
	r.Use(tag("inner"))

	require.NoError(t, r.Route(message(1, alice, "/ping@guildbank_bot")))
	assert.Equal(t, []string{"outer", "inner", "handler"}, trace)
}
