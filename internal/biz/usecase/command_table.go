package usecase

import (
	"fmt"
	"strings"

	"github.com/goldchat/matiebot/internal/biz/domain"
)

// CommandTable is the ordered, immutable command registry.
// Registration order is the match order: the first matching command wins.
type CommandTable struct {
	commands []domain.Command
}

// NewCommandTable builds a table, rejecting duplicate trigger words
func NewCommandTable(commands ...domain.Command) (*CommandTable, error) {
	seen := make(map[string]string)
	for _, cmd := range commands {
		if cmd.Name == "" {
			return nil, fmt.Errorf("command with empty name")
		}
		if cmd.Action == nil {
			return nil, fmt.Errorf("command %q has no action", cmd.Name)
		}
		for _, trigger := range cmd.Triggers() {
			key := strings.ToLower(trigger)
			if owner, ok := seen[key]; ok {
				return nil, fmt.Errorf("duplicate trigger %q (commands %q and %q)", trigger, owner, cmd.Name)
			}
			seen[key] = cmd.Name
		}
	}

	table := make([]domain.Command, len(commands))
	copy(table, commands)
	return &CommandTable{commands: table}, nil
}

// Commands returns the commands in registration order
func (t *CommandTable) Commands() []domain.Command {
	out := make([]domain.Command, len(t.commands))
	copy(out, t.commands)
	return out
}

// Len returns the number of registered commands
func (t *CommandTable) Len() int {
	return len(t.commands)
}

// Match returns the first command whose trigger claims text, with its argument
func (t *CommandTable) Match(text string) (domain.Command, string, bool) {
	if strings.TrimSpace(text) == "" {
		return domain.Command{}, "", false
	}
	for _, cmd := range t.commands {
		if arg, ok := cmd.Match(text); ok {
			return cmd, arg, true
		}
	}
	return domain.Command{}, "", false
}
