package command

import (
	"sybot/pkg/murmur"
)

// anonymousSender names the author of system-generated messages.
const anonymousSender = "Someone"

// Message is the snapshot of one inbound text event handed to a handler.
type Message struct {
	// Sender is nil for system-generated messages.
	Sender *murmur.User
	Server murmur.Server

	Sessions []int
	Channels []int
	Trees    []int
	Text     string

	// Groups holds the named captures of the winning pattern. Groups that did not
	// participate in the match map to "".
	Groups map[string]string
}

// NewMessage builds a Message from a host text event.
func NewMessage(server murmur.Server, sender *murmur.User, event murmur.TextMessage) *Message {
	return &Message{
		Sender:   sender,
		Server:   server,
		Sessions: append([]int(nil), event.Sessions...),
		Channels: append([]int(nil), event.Channels...),
		Trees:    append([]int(nil), event.Trees...),
		Text:     event.Text,
	}
}

// Group returns a named capture, or "" when absent.
func (m *Message) Group(name string) string {
	return m.Groups[name]
}

// SenderName returns the display name of the sender.
func (m *Message) SenderName() string {
	if m.Sender == nil || m.Sender.Name == "" {
		return anonymousSender
	}
	return m.Sender.Name
}

// SenderSession returns the sender's session id, if there is a sender.
func (m *Message) SenderSession() (int, bool) {
	if m.Sender == nil {
		return 0, false
	}
	return m.Sender.Session, true
}

func (m *Message) withGroups(groups map[string]string) *Message {
	clone := *m
	clone.Groups = groups
	return &clone
}
