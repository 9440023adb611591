package handlers

import (
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/guildbank/internal/domain"
	"github.com/Proton-105/guildbank/internal/i18n"
	"github.com/Proton-105/guildbank/internal/ledger"
)

// NewBalanceHandler handles /balance [emoji]. As a reply it lists only the
// replied-to user's holdings.
func NewBalanceHandler(svc Ledger, messages *i18n.Manager) Handler {
	return func(c telebot.Context) error {
		t := translator(c, messages)

		guild, err := Guild(c)
		if err != nil {
			return c.Reply(t.T("errors.group_only"))
		}

		req := ledger.GetBalancesRequest{Guild: guild}
		if _, args := ParseCommand(c.Text()); len(args) > 0 {
			req.Emoji = args[0]
		}
		if target := replyTarget(c); target != nil {
			ref := UserRef(target)
			req.User = &ref
		}

		lines, err := svc.GetBalances(RequestContext(c), req)
		if err != nil {
			return err
		}

		return c.Reply(renderBalances(t, lines))
	}
}

func renderBalances(t i18n.Translator, lines []domain.BalanceLine) string {
	if len(lines) == 0 {
		return t.T("balance.empty")
	}

	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(t.Tf("balance.line", line.Emoji, line.Name, line.Coins))
	}
	return b.String()
}

// NewCurrenciesHandler handles /currencies.
func NewCurrenciesHandler(svc Ledger, messages *i18n.Manager) Handler {
	return func(c telebot.Context) error {
		t := translator(c, messages)

		guild, err := Guild(c)
		if err != nil {
			return c.Reply(t.T("errors.group_only"))
		}

		emojis, err := svc.GetAllCurrenciesForGuild(RequestContext(c), guild)
		if err != nil {
			return err
		}
		if len(emojis) == 0 {
			return c.Reply(t.T("currencies.empty"))
		}

		return c.Reply(t.Tf("currencies.list", strings.Join(emojis, " ")))
	}
}
