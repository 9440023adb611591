// Package bot connects the ledger and membership services to Telegram group chats.
package bot

import (
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/guildbank/internal/bot/handlers"
	errors "github.com/Proton-105/guildbank/internal/errors"
	"github.com/Proton-105/guildbank/internal/i18n"
	"github.com/Proton-105/guildbank/internal/idempotency"
	"github.com/Proton-105/guildbank/internal/middleware"
	"github.com/Proton-105/guildbank/pkg/config"
)

// Deps holds the services and infrastructure the bot dispatches to.
// Idempotency and RateLimit are optional. Reaction transfers run only when
// Authors is set.
type Deps struct {
	Ledger         handlers.Ledger
	Membership     handlers.Membership
	Guilds         handlers.Guilds
	Authors        MessageAuthors
	Messages       *i18n.Manager
	ErrHandler     *errors.Handler
	Idempotency    idempotency.Manager
	IdempotencyTTL time.Duration
	RateLimit      *middleware.RateLimitMiddleware
}

// Bot wraps telebot.Bot with application dependencies required for handling updates.
type Bot struct {
	telebot   *telebot.Bot
	log       *slog.Logger
	cfg       config.BotConfig
	router    *Router
	reactions *Reactions
	deps      Deps
}

// New builds a telegram bot instance configured according to the application settings.
func New(cfg config.BotConfig, deps Deps, log *slog.Logger) (*Bot, error) {
	return newBot(cfg, deps, log, false)
}

func newBot(cfg config.BotConfig, deps Deps, log *slog.Logger, offline bool) (*Bot, error) {
	if log == nil {
		log = slog.Default()
	}
	if deps.ErrHandler == nil {
		deps.ErrHandler = errors.NewHandler(log, false)
	}

	settings := telebot.Settings{
		Token:   cfg.Token,
		Offline: offline,
		OnError: func(err error, c telebot.Context) {
			deps.ErrHandler.Handle(handlers.RequestContext(c), err)
		},
	}

	var reactions *Reactions
	var allowed []string
	if deps.Authors != nil {
		reactions = newReactions(deps, log)
		allowed = reactionUpdates
	}

	if cfg.Mode == "webhook" {
		settings.Poller = &telebot.Webhook{
			Listen:         cfg.WebhookListen,
			Endpoint:       &telebot.WebhookEndpoint{PublicURL: cfg.WebhookURL},
			AllowedUpdates: allowed,
		}
	} else {
		settings.Poller = &telebot.LongPoller{
			Timeout:        cfg.Timeout,
			AllowedUpdates: allowed,
		}
	}
	if reactions != nil {
		settings.Poller = telebot.NewMiddlewarePoller(settings.Poller, reactions.Filter)
	}

	tb, err := telebot.NewBot(settings)
	if err != nil {
		return nil, errors.NewExternalAPIError("telegram", err)
	}
	if reactions != nil {
		reactions.sender = tb
	}

	b := &Bot{
		telebot:   tb,
		log:       log,
		cfg:       cfg,
		router:    NewRouter(log),
		reactions: reactions,
		deps:      deps,
	}

	b.setupRouter()
	b.telebot.Handle(telebot.OnText, b.router.Route)

	return b, nil
}

// Start publishes the command menu and runs the telegram bot event loop. It
// blocks until Stop is called.
func (b *Bot) Start() {
	if b.telebot == nil {
		return
	}

	if err := b.telebot.SetCommands(b.menu()); err != nil {
		b.log.Warn("failed to publish command menu", slog.Any("error", err))
	}

	b.log.Info("telegram bot started", slog.String("mode", b.cfg.Mode))
	b.telebot.Start()
}

// Stop gracefully stops the telegram bot.
func (b *Bot) Stop() {
	if b.telebot == nil {
		return
	}

	b.log.Info("stopping telegram bot...")
	b.telebot.Stop()
}

// Telebot exposes the underlying telebot.Bot instance for integrations such as health checks.
func (b *Bot) Telebot() *telebot.Bot {
	return b.telebot
}

func (b *Bot) setupRouter() {
	b.router.Use(RecoveryMiddleware(b.log, b.deps.ErrHandler))
	b.router.Use(LoggingMiddleware(b.log))
	b.router.Use(middleware.Idempotency(b.deps.Idempotency, b.deps.IdempotencyTTL, b.log))
	b.router.Use(ErrorHandlingMiddleware(b.deps.ErrHandler))
	if b.deps.RateLimit != nil {
		b.router.Use(b.deps.RateLimit.Handle)
	}
	b.router.Use(middleware.Metrics)

	help := handlers.NewHelpHandler(b.deps.Messages)
	b.router.RegisterCommand(CommandStart, help)
	b.router.RegisterCommand(CommandHelp, help)
	b.router.RegisterCommand(CommandCreate, handlers.NewCreateHandler(b.deps.Ledger, b.deps.Messages, b.log))
	b.router.RegisterCommand(CommandSend, handlers.NewSendHandler(b.deps.Ledger, b.deps.Messages))
	b.router.RegisterCommand(CommandBalance, handlers.NewBalanceHandler(b.deps.Ledger, b.deps.Messages))
	b.router.RegisterCommand(CommandCurrencies, handlers.NewCurrenciesHandler(b.deps.Ledger, b.deps.Messages))
	if b.deps.Membership != nil {
		b.router.RegisterCommand(CommandRoles, handlers.NewRolesHandler(b.deps.Membership, b.deps.Messages))
	}
	if b.deps.Guilds != nil && b.reactions != nil {
		b.router.RegisterCommand(CommandSpam, handlers.NewSpamChannelHandler(b.deps.Guilds, b.deps.Messages))
	}
}

// menu lists the registered commands in the order Telegram clients show them.
func (b *Bot) menu() []telebot.Command {
	commands := make([]telebot.Command, 0, len(commandDescriptions))
	for _, d := range commandDescriptions {
		if !b.router.Has(d.Command) {
			continue
		}
		commands = append(commands, telebot.Command{Text: d.Command[1:], Description: d.Description})
	}
	return commands
}
