package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mukuzz/myfi-sub000/internal/models"
)

// ProcessedMessage loads the idempotency record for one message id, or nil
// when the message has never been seen.
func (s *Store) ProcessedMessage(messageID string) (*models.ProcessedMessage, error) {
	var record models.ProcessedMessage
	err := s.db.Where("message_id = ?", messageID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load processed message %s: %w", messageID, err)
	}
	return &record, nil
}

// IsMessageProcessedFor reports whether the (message, account) pair has
// already been credited.
func (s *Store) IsMessageProcessedFor(messageID, accountID string) (bool, error) {
	record, err := s.ProcessedMessage(messageID)
	if err != nil {
		return false, err
	}
	return record != nil && record.HasAccount(accountID), nil
}

// MarkMessageProcessed records that an account has finished with a message.
// The record is created on first sight and updated in place afterwards, so a
// message shared by several accounts accumulates its processed set and
// transaction count incrementally.
func (s *Store) MarkMessageProcessed(messageID, accountID string, messageTime time.Time, transactionsCreated int) error {
	now := time.Now()

	record, err := s.ProcessedMessage(messageID)
	if err != nil {
		return err
	}

	if record == nil {
		record = &models.ProcessedMessage{
			MessageID:        messageID,
			MessageTimestamp: messageTime,
			FirstSeenAt:      now,
		}
		record.AddAccount(accountID)
		record.LastSeenAt = now
		record.TransactionsCreated = transactionsCreated
		if err := s.db.Create(record).Error; err != nil {
			return fmt.Errorf("failed to create processed message record: %w", err)
		}
		return nil
	}

	changed := record.AddAccount(accountID)
	record.LastSeenAt = now
	if changed {
		record.TransactionsCreated += transactionsCreated
	}
	if err := s.db.Save(record).Error; err != nil {
		return fmt.Errorf("failed to update processed message record: %w", err)
	}
	return nil
}

// LatestMessageTime returns the newest message timestamp already processed
// for an account; ok is false when the account has never seen a message.
// Used as the watermark bounding future inbox queries.
func (s *Store) LatestMessageTime(accountID string) (time.Time, bool, error) {
	var record models.ProcessedMessage
	pattern := `%"` + accountID + `"%`
	err := s.db.Where("processed_accounts LIKE ?", pattern).
		Order("message_timestamp DESC").First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query latest message time: %w", err)
	}
	return record.MessageTimestamp, true, nil
}
