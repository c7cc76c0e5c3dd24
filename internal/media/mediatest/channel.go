// Package mediatest provides in-memory fakes of the media interfaces for
// tests across packages.
package mediatest

import (
	"context"
	"sync"

	"github.com/JakeFAU/pinfetch/internal/media"
)

// Call records one channel invocation.
type Call struct {
	Method string
	ChatID int64
	// Arg is the URL, file name, action, or message text.
	Arg    string
	Data   []byte
	Format media.TextFormat
}

// Channel records every call and fails the methods listed in Errors.
type Channel struct {
	mu     sync.Mutex
	calls  []Call
	Errors map[string]error
}

var _ media.Channel = (*Channel)(nil)

// NewChannel returns a Channel that accepts everything.
func NewChannel() *Channel {
	return &Channel{Errors: map[string]error{}}
}

// FailOn makes method return err.
func (c *Channel) FailOn(method string, err error) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Errors[method] = err
	return c
}

// Calls returns a copy of the recorded calls.
func (c *Channel) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Methods returns the recorded method names in order, skipping chat actions.
func (c *Channel) Methods() []string {
	var out []string
	for _, call := range c.Calls() {
		if call.Method == "SendAction" {
			continue
		}
		out = append(out, call.Method)
	}
	return out
}

// Messages returns the texts of SendMessage calls.
func (c *Channel) Messages() []string {
	var out []string
	for _, call := range c.Calls() {
		if call.Method == "SendMessage" {
			out = append(out, call.Arg)
		}
	}
	return out
}

func (c *Channel) record(call Call) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	return c.Errors[call.Method]
}

// SendDocumentURL implements media.Channel.
func (c *Channel) SendDocumentURL(_ context.Context, chatID int64, url string) error {
	return c.record(Call{Method: "SendDocumentURL", ChatID: chatID, Arg: url})
}

// SendPhotoURL implements media.Channel.
func (c *Channel) SendPhotoURL(_ context.Context, chatID int64, url string) error {
	return c.record(Call{Method: "SendPhotoURL", ChatID: chatID, Arg: url})
}

// SendPhotoBytes implements media.Channel.
func (c *Channel) SendPhotoBytes(_ context.Context, chatID int64, name string, data []byte) error {
	return c.record(Call{Method: "SendPhotoBytes", ChatID: chatID, Arg: name, Data: data})
}

// SendVideoURL implements media.Channel.
func (c *Channel) SendVideoURL(_ context.Context, chatID int64, url string) error {
	return c.record(Call{Method: "SendVideoURL", ChatID: chatID, Arg: url})
}

// SendVideoBytes implements media.Channel.
func (c *Channel) SendVideoBytes(_ context.Context, chatID int64, name string, data []byte) error {
	return c.record(Call{Method: "SendVideoBytes", ChatID: chatID, Arg: name, Data: data})
}

// SendMessage implements media.Channel.
func (c *Channel) SendMessage(_ context.Context, chatID int64, text string, format media.TextFormat) error {
	return c.record(Call{Method: "SendMessage", ChatID: chatID, Arg: text, Format: format})
}

// SendAction implements media.Channel.
func (c *Channel) SendAction(_ context.Context, chatID int64, action string) error {
	return c.record(Call{Method: "SendAction", ChatID: chatID, Arg: action})
}
