package handlers

import (
	"strconv"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/guildbank/internal/i18n"
)

// NewRolesHandler handles /roles, listing the sender's mentionable roles.
func NewRolesHandler(svc Membership, messages *i18n.Manager) Handler {
	return func(c telebot.Context) error {
		t := translator(c, messages)

		guild, err := Guild(c)
		if err != nil {
			return c.Reply(t.T("errors.group_only"))
		}
		if c.Sender() == nil {
			return nil
		}

		roles, err := svc.GetUserRoles(RequestContext(c), strconv.FormatInt(c.Sender().ID, 10), guild)
		if err != nil {
			return err
		}
		if len(roles) == 0 {
			return c.Reply(t.T("roles.empty"))
		}

		return c.Reply(t.Tf("roles.list", strings.Join(roles, ", ")))
	}
}
