// Package transport defines the messaging gateway boundary: incoming user
// messages and outgoing prompts/notifications, independent of Telegram.
package transport

import "context"

type Update struct {
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
}

// Keyboard describes a reply keyboard as rows of button labels.
// A nil Keyboard leaves the client keyboard untouched.
type Keyboard struct {
	Rows    [][]string
	OneTime bool
}

type SendOptions struct {
	Keyboard       *Keyboard
	RemoveKeyboard bool
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, chatID int64, text string, opt *SendOptions) error
}
