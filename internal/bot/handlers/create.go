package handlers

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/guildbank/internal/i18n"
	"github.com/Proton-105/guildbank/internal/ledger"
)

type createArgs struct {
	emoji  string
	amount int64
	name   string
}

// parseCreateArgs reads "<emoji> <amount> <name...>".
func parseCreateArgs(args []string) (createArgs, error) {
	if len(args) < 3 {
		return createArgs{}, errUsage
	}

	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return createArgs{}, errUsage
	}

	return createArgs{
		emoji:  args[0],
		amount: amount,
		name:   strings.Join(args[2:], " "),
	}, nil
}

// NewCreateHandler handles /create. The commissioner is the author of the
// replied-to message, or the sender when the command is not a reply.
func NewCreateHandler(svc Ledger, messages *i18n.Manager, log *slog.Logger) Handler {
	return func(c telebot.Context) error {
		t := translator(c, messages)

		guild, err := Guild(c)
		if err != nil {
			return c.Reply(t.T("errors.group_only"))
		}

		_, rawArgs := ParseCommand(c.Text())
		args, err := parseCreateArgs(rawArgs)
		if errors.Is(err, errUsage) {
			return c.Reply(t.T("create.usage"))
		}

		commissioner := c.Sender()
		if target := replyTarget(c); target != nil {
			commissioner = target
		}
		if commissioner == nil || commissioner.IsBot {
			return c.Reply(t.T("errors.bot_user"))
		}

		owner := UserRef(commissioner)
		currency, err := svc.CreateCurrency(RequestContext(c), ledger.CreateCurrencyRequest{
			Name:          args.name,
			Guild:         guild,
			Emoji:         args.emoji,
			InitialAmount: args.amount,
			Commissioner:  owner,
		})
		if err != nil {
			return err
		}

		if log != nil {
			log.Debug("currency command completed", slog.String("guild", guild), slog.String("emoji", currency.Emoji))
		}

		return c.Reply(t.Tf("create.ok", currency.Emoji, currency.Name, owner.DisplayName, args.amount))
	}
}
