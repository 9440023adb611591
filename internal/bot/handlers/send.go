package handlers

import (
	"errors"
	"strconv"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/guildbank/internal/i18n"
	"github.com/Proton-105/guildbank/internal/ledger"
)

// parseSendArgs reads "<amount> <emoji>".
func parseSendArgs(args []string) (int64, string, error) {
	if len(args) != 2 {
		return 0, "", errUsage
	}

	amount, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, "", errUsage
	}

	return amount, args[1], nil
}

// NewSendHandler handles /send as a reply; the replied-to author is paid.
func NewSendHandler(svc Ledger, messages *i18n.Manager) Handler {
	return func(c telebot.Context) error {
		t := translator(c, messages)

		guild, err := Guild(c)
		if err != nil {
			return c.Reply(t.T("errors.group_only"))
		}

		_, rawArgs := ParseCommand(c.Text())
		amount, emoji, err := parseSendArgs(rawArgs)
		if errors.Is(err, errUsage) {
			return c.Reply(t.T("send.usage"))
		}

		target := replyTarget(c)
		if target == nil {
			return c.Reply(t.T("errors.reply_required"))
		}
		if target.IsBot || c.Sender() == nil || c.Sender().IsBot {
			return c.Reply(t.T("errors.bot_user"))
		}

		sender := UserRef(c.Sender())
		recipient := UserRef(target)

		receipt, err := svc.TransferFunds(RequestContext(c), ledger.TransferRequest{
			Sender:    sender,
			Recipient: recipient,
			Amount:    amount,
			Emoji:     emoji,
			Guild:     guild,
		})
		if err != nil {
			return err
		}

		return c.Reply(t.Tf("send.ok",
			sender.DisplayName, receipt.Amount, receipt.Emoji, recipient.DisplayName,
			recipient.DisplayName, receipt.RecipientBalance,
		))
	}
}
