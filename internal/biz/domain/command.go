package domain

import (
	"context"
	"strings"
)

// TriggerKind represents how a command claims a message
type TriggerKind int

const (
	TriggerPrefix TriggerKind = iota
	TriggerSubstring
)

// argTrimSet is stripped from both ends of a prefix argument
const argTrimSet = " ,\r\n\t"

// Request is the matched input handed to a command action
type Request struct {
	Msg *InboundMessage
	Arg string // Stripped argument for prefix triggers, full text for substring triggers
}

// Result carries what an action reports back for bookkeeping
type Result struct {
	EstimatedCost float64
}

// Action runs a command
type Action func(ctx context.Context, req *Request) (Result, error)

// Command is an immutable command definition
type Command struct {
	Name        string
	AltName     string
	Trigger     TriggerKind
	Allowed     PrincipalSet
	Quota       QuotaClass
	Kind        EventKind
	Description string
	Action      Action
}

// Triggers returns the non-empty trigger words
func (c *Command) Triggers() []string {
	out := []string{c.Name}
	if c.AltName != "" {
		out = append(out, c.AltName)
	}
	return out
}

// Match tests the trigger against text and returns the argument on success
func (c *Command) Match(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	lower := strings.ToLower(text)
	for _, trigger := range c.Triggers() {
		if trigger == "" {
			continue
		}
		t := strings.ToLower(trigger)
		switch c.Trigger {
		case TriggerPrefix:
			if strings.HasPrefix(lower, t) {
				return strings.Trim(text[len(prefixOf(text, t)):], argTrimSet), true
			}
		case TriggerSubstring:
			if strings.Contains(lower, t) {
				return text, true
			}
		}
	}
	return "", false
}

// prefixOf returns the leading part of text that case-folds to lowerTrigger.
// Byte lengths can differ between cases for some scripts.
func prefixOf(text, lowerTrigger string) string {
	n := len([]rune(lowerTrigger))
	runes := []rune(text)
	if n > len(runes) {
		return text
	}
	return string(runes[:n])
}
