package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrincipalSet_Admits(t *testing.T) {
	p := Principals{Admins: []string{"42", ""}, GoldChat: "-100"}
	admins := p.AdminsSet()
	gold := p.AdminsAndGoldChat()
	var open PrincipalSet

	tests := []struct {
		name   string
		set    PrincipalSet
		chatID string
		userID string
		want   bool
	}{
		{"empty set admits everyone", open, "c1", "u1", true},
		{"empty set admits channel posts", open, "c1", "", true},
		{"gold chat admitted", gold, "-100", "7", true},
		{"admin admitted from any chat", gold, "555", "42", true},
		{"stranger denied", gold, "555", "7", false},
		{"channel post in unknown chat denied", gold, "555", "", false},
		{"admins only denies gold chat member", admins, "-100", "7", false},
		{"admins only admits admin", admins, "-5", "42", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.set.Admits(tt.chatID, tt.userID))
		})
	}

	assert.True(t, open.Empty())
	assert.Equal(t, []string{"42"}, admins.IDs())
	assert.False(t, gold.Contains(""))
}
