package store

import (
	"testing"
	"time"

	"github.com/ashureev/pairchat/internal/domain"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestMessageCodec(t *testing.T) {
	req := require.New(t)
	in := &domain.Message{
		ID:         12,
		SenderID:   3,
		ReceiverID: 4,
		Text:       "привет, мир",
		CreatedAt:  time.Unix(1700000000, 123456789).UTC(),
	}

	out, err := decodeMessage(encodeMessage(in))
	req.NoError(err)
	req.Equal(in, out)
}

func TestDecodeSkipsUnknownFields(t *testing.T) {
	req := require.New(t)
	b := encodeMessage(&domain.Message{ID: 1, SenderID: 1, ReceiverID: 2, Text: "x", CreatedAt: time.Unix(0, 5).UTC()})
	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendString(b, "future field")

	m, err := decodeMessage(b)
	req.NoError(err)
	req.Equal("x", m.Text)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := decodeMessage([]byte{0xff})
	require.Error(t, err)

	_, err = decodeMessage(nil)
	require.Error(t, err)
}
