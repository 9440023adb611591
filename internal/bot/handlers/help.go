package handlers

import (
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/guildbank/internal/i18n"
)

// NewHelpHandler handles /help and /start.
func NewHelpHandler(messages *i18n.Manager) Handler {
	return func(c telebot.Context) error {
		return c.Send(translator(c, messages).T("help"))
	}
}
