package handlers

import (
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/guildbank/internal/i18n"
)

// NewSpamChannelHandler handles /spamchannel: reaction transfer replies of
// this chat go to the topic the command was sent in.
func NewSpamChannelHandler(svc Guilds, messages *i18n.Manager) Handler {
	return func(c telebot.Context) error {
		t := translator(c, messages)

		guild, err := Guild(c)
		if err != nil {
			return c.Reply(t.T("errors.group_only"))
		}

		threadID := 0
		if msg := c.Message(); msg != nil {
			threadID = msg.ThreadID
		}

		if err := svc.SetSpamChannel(RequestContext(c), guild, c.Chat().ID, threadID); err != nil {
			return err
		}

		return c.Reply(t.T("spamchannel.ok"))
	}
}
