package bot

// Command constants for Telegram bot commands.
const (
	CommandStart      = "/start"
	CommandHelp       = "/help"
	CommandCreate     = "/create"
	CommandSend       = "/send"
	CommandBalance    = "/balance"
	CommandCurrencies = "/currencies"
	CommandRoles      = "/roles"
	CommandSpam       = "/spamchannel"
)

// commandDescriptions feeds the command menu shown by Telegram clients.
var commandDescriptions = []struct {
	Command     string
	Description string
}{
	{CommandCreate, "Create a currency in this chat"},
	{CommandSend, "Pay the author of the replied message"},
	{CommandBalance, "Show balances"},
	{CommandCurrencies, "List currencies of this chat"},
	{CommandRoles, "List your mentionable roles"},
	{CommandSpam, "Send reaction payment notices to this topic"},
	{CommandHelp, "Show help"},
}
