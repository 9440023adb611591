// Package bottest provides a recording telebot.Context for handler tests.
package bottest

import (
	"fmt"
	"sync"

	telebot "gopkg.in/telebot.v3"
)

// Context implements the subset of telebot.Context the bot uses. Calling any
// other method panics through the nil embedded interface.
type Context struct {
	telebot.Context

	mu      sync.Mutex
	msg     *telebot.Message
	values  map[string]interface{}
	replies []string
}

// GroupChatID is the chat id used by NewGroupMessage.
const GroupChatID int64 = -100123

// NewGroupMessage builds a context for text sent by from in a supergroup.
func NewGroupMessage(from *telebot.User, text string) *Context {
	return NewContext(&telebot.Message{
		ID:     1,
		Sender: from,
		Chat:   &telebot.Chat{ID: GroupChatID, Type: telebot.ChatSuperGroup},
		Text:   text,
	})
}

func NewContext(msg *telebot.Message) *Context {
	return &Context{msg: msg, values: map[string]interface{}{}}
}

// InReplyTo marks the message as a reply to a message written by author.
func (c *Context) InReplyTo(author *telebot.User) *Context {
	c.msg.ReplyTo = &telebot.Message{ID: c.msg.ID + 1000, Sender: author, Chat: c.msg.Chat}
	return c
}

// Replies returns everything sent through Send or Reply.
func (c *Context) Replies() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.replies...)
}

// LastReply returns the most recent reply or an empty string.
func (c *Context) LastReply() string {
	replies := c.Replies()
	if len(replies) == 0 {
		return ""
	}
	return replies[len(replies)-1]
}

func (c *Context) Message() *telebot.Message { return c.msg }

func (c *Context) Sender() *telebot.User {
	if c.msg == nil {
		return nil
	}
	return c.msg.Sender
}

func (c *Context) Chat() *telebot.Chat {
	if c.msg == nil {
		return nil
	}
	return c.msg.Chat
}

func (c *Context) Text() string {
	if c.msg == nil {
		return ""
	}
	return c.msg.Text
}

func (c *Context) Callback() *telebot.Callback { return nil }

func (c *Context) Send(what interface{}, _ ...interface{}) error {
	c.record(what)
	return nil
}

func (c *Context) Reply(what interface{}, _ ...interface{}) error {
	c.record(what)
	return nil
}

func (c *Context) Get(key string) interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[key]
}

func (c *Context) Set(key string, val interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = val
}

func (c *Context) record(what interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, fmt.Sprint(what))
}
