package domain

import "time"

// ChannelKind names what a guild uses a channel for.
type ChannelKind string

// ChannelSpam receives the bot's replies to reaction transfers.
const ChannelSpam ChannelKind = "spam_channel"

// GuildChannel points a guild at a chat, and optionally a forum topic in it.
// ThreadID is zero for the chat's main thread.
type GuildChannel struct {
	Guild     string
	Kind      ChannelKind
	ChatID    int64
	ThreadID  int
	UpdatedAt time.Time
}
