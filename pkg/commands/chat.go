package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"sybot/pkg/command"
)

const maxDice = 5

var greetings = []string{
	"Hello",
	"Hi",
	"What up",
	"Sup",
	"Yo",
}

var pickPhrases = []string{
	"Hmm... I pick %s",
	"Let's go with %s",
	"How about %s?",
	"%s sounds good",
	"I don't like it, but %s is still the best option there",
}

// Hello answers a bare greeting, to check the bot is alive.
func (s *Set) Hello(ctx context.Context, msg *command.Message) error {
	return s.respond(ctx, msg, s.pick(greetings))
}

// Help sends the usage of every visible command to the sender.
func (s *Set) Help(ctx context.Context, msg *command.Message) error {
	var b strings.Builder
	b.WriteString("Available commands:<ul>")
	for _, usage := range s.router.Usage() {
		b.WriteString("<li>")
		b.WriteString(usage)
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")

	session, ok := msg.SenderSession()
	if !ok {
		return s.respond(ctx, msg, b.String())
	}
	return s.reply.SendToUser(ctx, msg.Server, session, b.String())
}

// PickOne chooses one entry of a comma separated list.
func (s *Set) PickOne(ctx context.Context, msg *command.Message) error {
	var choices []string
	for _, item := range strings.Split(msg.Group("items"), ",") {
		if item = strings.TrimSpace(item); item != "" {
			choices = append(choices, item)
		}
	}
	if len(choices) == 0 {
		return s.respond(ctx, msg, "Give me something to pick from.")
	}

	choice := s.pick(choices)
	return s.respond(ctx, msg, fmt.Sprintf(s.pick(pickPhrases), choice))
}

// Roll rolls up to five dice.
func (s *Set) Roll(ctx context.Context, msg *command.Message) error {
	return s.respond(ctx, msg, s.rollText(msg))
}

func (s *Set) rollText(msg *command.Message) string {
	dice, diceErr := strconv.Atoi(msg.Group("dice"))
	sides, sidesErr := strconv.Atoi(msg.Group("sides"))

	switch {
	case sidesErr == nil && sides < 1:
		return "How Can Dice Be Real If Their Sides Are Not?"
	case diceErr == nil && dice < 1:
		return "How Can Sides Be Real If Dice Are Not?"
	case diceErr != nil || dice > maxDice:
		return "I don't have that many dice."
	case sidesErr != nil:
		return "Those dice would never stop rolling."
	}

	rolls := make([]string, dice)
	for i := range rolls {
		rolls[i] = strconv.Itoa(s.intN(sides) + 1)
	}
	return fmt.Sprintf("%s rolled %s", msg.SenderName(), strings.Join(rolls, ", "))
}
