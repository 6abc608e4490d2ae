package store

import (
	"fmt"
	"time"

	"github.com/ashureev/pairchat/internal/domain"
	"google.golang.org/protobuf/encoding/protowire"
)

// Wire field numbers of a stored message record. Never renumber.
const (
	fieldID         protowire.Number = 1
	fieldSenderID   protowire.Number = 2
	fieldReceiverID protowire.Number = 3
	fieldText       protowire.Number = 4
	fieldCreatedAt  protowire.Number = 5
)

// encodeMessage serializes a message as a protobuf-compatible record.
func encodeMessage(m *domain.Message) []byte {
	b := make([]byte, 0, 32+len(m.Text))
	b = protowire.AppendTag(b, fieldID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.ID))
	b = protowire.AppendTag(b, fieldSenderID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.SenderID))
	b = protowire.AppendTag(b, fieldReceiverID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.ReceiverID))
	b = protowire.AppendTag(b, fieldText, protowire.BytesType)
	b = protowire.AppendString(b, m.Text)
	b = protowire.AppendTag(b, fieldCreatedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.CreatedAt.UnixNano()))
	return b
}

// decodeMessage parses a record written by encodeMessage. Unknown fields are skipped.
func decodeMessage(b []byte) (*domain.Message, error) {
	var m domain.Message
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("decode message tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.VarintType && num != fieldText:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("decode message field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldID:
				m.ID = int64(v)
			case fieldSenderID:
				m.SenderID = domain.UserID(v)
			case fieldReceiverID:
				m.ReceiverID = domain.UserID(v)
			case fieldCreatedAt:
				m.CreatedAt = time.Unix(0, int64(v)).UTC()
			}
		case num == fieldText && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, fmt.Errorf("decode message text: %w", protowire.ParseError(n))
			}
			b = b[n:]
			m.Text = v
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("skip message field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if m.ID <= 0 {
		return nil, fmt.Errorf("decode message: missing id")
	}
	return &m, nil
}
