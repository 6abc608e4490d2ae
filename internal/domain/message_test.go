package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidateMessage(t *testing.T) {
	tests := []struct {
		name     string
		sender   UserID
		receiver UserID
		text     string
		maxLen   int
		want     string
		wantErr  bool
	}{
		{"valid", 1, 2, "hi", 0, "hi", false},
		{"trims whitespace", 1, 2, "  hello \n", 0, "hello", false},
		{"self message", 3, 3, "hi", 0, "", true},
		{"empty", 1, 2, "", 0, "", true},
		{"whitespace only", 1, 2, " \t\n ", 0, "", true},
		{"missing sender", 0, 2, "hi", 0, "", true},
		{"at limit", 1, 2, strings.Repeat("a", 4096), 0, strings.Repeat("a", 4096), false},
		{"over limit", 1, 2, strings.Repeat("a", 4097), 0, "", true},
		{"custom limit counts runes", 1, 2, "ééé", 3, "ééé", false},
		{"custom limit exceeded", 1, 2, "éééé", 3, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			got, err := ValidateMessage(tt.sender, tt.receiver, tt.text, tt.maxLen)
			if tt.wantErr {
				req.ErrorIs(err, ErrValidation)
				return
			}
			req.NoError(err)
			req.Equal(tt.want, got)
		})
	}
}

func TestParseUserID(t *testing.T) {
	req := require.New(t)

	id, err := ParseUserID(" 42 ")
	req.NoError(err)
	req.Equal(UserID(42), id)
	req.Equal("42", id.String())

	for _, bad := range []string{"", "abc", "0", "-5", "1.5"} {
		_, err := ParseUserID(bad)
		req.ErrorIs(err, ErrValidation, bad)
	}
}

func TestMessageOrdering(t *testing.T) {
	req := require.New(t)
	at := time.Now()

	a := &Message{ID: 1, CreatedAt: at}
	b := &Message{ID: 2, CreatedAt: at}
	c := &Message{ID: 0, CreatedAt: at.Add(time.Millisecond)}

	req.True(a.Before(b))
	req.False(b.Before(a))
	req.True(b.Before(c))

	m := &Message{SenderID: 1, ReceiverID: 2}
	req.True(m.Involves(1, 2))
	req.True(m.Involves(2, 1))
	req.False(m.Involves(1, 3))
}
