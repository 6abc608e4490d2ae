package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/pairchat/internal/domain"
	"github.com/dgraph-io/badger/v4"
	"golang.org/x/sync/semaphore"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	messageKeyPrefix = "pm:"
	sequenceBand     = 100
)

var (
	messageSequenceKey = []byte("meta:message_seq")
	lastCreatedAtKey   = []byte("meta:last_created_at")
)

// BadgerMessageStore implements MessageStore on BadgerDB.
//
// Keys are "pm:{low_user}:{high_user}:{id}" with 20-digit zero padding, so a
// prefix scan over one pair yields its conversation in id order. Ids and
// created_at are assigned under one lock, which makes id order and created_at
// order identical.
type BadgerMessageStore struct {
	db     *badger.DB
	seq    *badger.Sequence
	maxLen int
	now    func() time.Time
	logger *slog.Logger

	writeSem      *semaphore.Weighted
	lastCreatedAt int64
}

// NewBadgerMessageStore opens (or creates) a Badger message store at path.
func NewBadgerMessageStore(path string, maxMessageLength int, logger *slog.Logger) (*BadgerMessageStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	seq, err := db.GetSequence(messageSequenceKey, sequenceBand)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open message sequence: %w", err)
	}

	s := &BadgerMessageStore{
		db:       db,
		seq:      seq,
		maxLen:   maxMessageLength,
		now:      time.Now,
		logger:   logger,
		writeSem: semaphore.NewWeighted(1),
	}

	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(lastCreatedAtKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			n, l := protowire.ConsumeVarint(v)
			if l < 0 {
				return protowire.ParseError(l)
			}
			s.lastCreatedAt = int64(n)
			return nil
		})
	})
	if err != nil {
		_ = seq.Release()
		_ = db.Close()
		return nil, fmt.Errorf("load last message time: %w", err)
	}

	return s, nil
}

func conversationPrefix(a, b domain.UserID) []byte {
	if a > b {
		a, b = b, a
	}
	return []byte(fmt.Sprintf("%s%020d:%020d:", messageKeyPrefix, int64(a), int64(b)))
}

func messageKey(prefix []byte, id int64) []byte {
	key := make([]byte, 0, len(prefix)+20)
	key = append(key, prefix...)
	return append(key, fmt.Sprintf("%020d", id)...)
}

// Append validates and persists a message in a single Badger transaction.
func (s *BadgerMessageStore) Append(ctx context.Context, sender, receiver domain.UserID, text string) (*domain.Message, error) {
	text, err := domain.ValidateMessage(sender, receiver, text, s.maxLen)
	if err != nil {
		return nil, err
	}

	// A caller whose deadline passes while queued fails without writing.
	if err := s.writeSem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: append message: %w", domain.ErrStorage, err)
	}
	defer s.writeSem.Release(1)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: append message: %w", domain.ErrStorage, err)
	}

	next, err := s.seq.Next()
	if err != nil {
		return nil, fmt.Errorf("%w: allocate message id: %w", domain.ErrStorage, err)
	}

	createdAt := s.now().UnixNano()
	if createdAt < s.lastCreatedAt {
		createdAt = s.lastCreatedAt
	}

	msg := &domain.Message{
		ID:         int64(next) + 1,
		SenderID:   sender,
		ReceiverID: receiver,
		Text:       text,
		CreatedAt:  time.Unix(0, createdAt).UTC(),
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		// Returning an error discards the transaction, so nothing is committed.
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := txn.Set(messageKey(conversationPrefix(sender, receiver), msg.ID), encodeMessage(msg)); err != nil {
			return err
		}
		return txn.Set(lastCreatedAtKey, protowire.AppendVarint(nil, uint64(createdAt)))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: append message: %w", domain.ErrStorage, err)
	}
	s.lastCreatedAt = createdAt

	return msg, nil
}

// ReadConversation scans the pair's key range in ascending id order.
func (s *BadgerMessageStore) ReadConversation(ctx context.Context, a, b domain.UserID, afterID int64) ([]domain.Message, error) {
	prefix := conversationPrefix(a, b)
	seek := prefix
	if afterID > 0 {
		seek = messageKey(prefix, afterID+1)
	}

	messages := make([]domain.Message, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(v []byte) error {
				m, err := decodeMessage(v)
				if err != nil {
					return err
				}
				if !m.Involves(a, b) {
					return fmt.Errorf("message %d stored under the wrong conversation", m.ID)
				}
				messages = append(messages, *m)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: read conversation: %w", domain.ErrStorage, err)
	}

	return messages, nil
}

// Ping reports whether the database is still open.
func (s *BadgerMessageStore) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return fmt.Errorf("%w: badger is closed", domain.ErrStorage)
	}
	return nil
}

// Close releases the id sequence and closes the database.
func (s *BadgerMessageStore) Close() error {
	if err := s.seq.Release(); err != nil {
		s.logger.Warn("failed to release message sequence", "error", err)
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close badger: %w", err)
	}
	return nil
}
