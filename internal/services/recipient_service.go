package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"transfer-backend/internal/feed"
	"transfer-backend/internal/models"
	"transfer-backend/internal/repository"
	"transfer-backend/internal/session"
	"transfer-backend/internal/utils"
	"transfer-backend/internal/validator"

	"github.com/sirupsen/logrus"
)

const maxNicknameLength = 64

// ErrRecipientNotFound no recipient with that id in the user's directory
var ErrRecipientNotFound = errors.New("recipient not found")

// RecipientService explicit add/remove actions on the recipient directory
type RecipientService struct {
	recipients repository.RecipientRepository
	publisher  feed.Publisher
	now        func() time.Time
}

// NewRecipientService creates the service; publisher may be nil
func NewRecipientService(recipients repository.RecipientRepository, publisher feed.Publisher) *RecipientService {
	if publisher == nil {
		publisher = feed.NopPublisher{}
	}
	return &RecipientService{recipients: recipients, publisher: publisher, now: time.Now}
}

// AddRecipient saves address in the session user's directory. Adding an
// existing address keeps its history and replaces the nickname when one is given.
func (s *RecipientService) AddRecipient(ctx context.Context, sess *session.Session, address string, nickname *string) (*models.Recipient, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, &validator.Error{Code: validator.CodeMissingField, Field: "address", Message: "recipient address is required"}
	}
	if !utils.IsEvmAddress(address) {
		return nil, &validator.Error{Code: validator.CodeMalformedAddress, Field: "address", Message: "not a 0x-prefixed 40 hex character address"}
	}
	if nickname != nil {
		trimmed := strings.TrimSpace(*nickname)
		if utf8.RuneCountInString(trimmed) > maxNicknameLength {
			return nil, &validator.Error{Code: validator.CodeInvalidField, Field: "nickname", Message: "nickname is too long"}
		}
		if trimmed == "" {
			nickname = nil
		} else {
			nickname = &trimmed
		}
	}

	rec, err := s.recipients.Save(ctx, sess.UserAddress, address, nickname, s.now().UTC())
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"user":      sess.UserAddress,
		"recipient": rec.RecipientAddress,
	}).Info("📇 [RecipientService] recipient saved")
	s.publish(ctx, sess.UserAddress, feed.OpUpdate)
	return rec, nil
}

// RemoveRecipient deletes a directory entry; transaction history is untouched
func (s *RecipientService) RemoveRecipient(ctx context.Context, sess *session.Session, id string) error {
	deleted, err := s.recipients.Delete(ctx, sess.UserAddress, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	if !deleted {
		return ErrRecipientNotFound
	}
	logrus.WithFields(logrus.Fields{"user": sess.UserAddress, "recipient_id": id}).Info("🗑️ [RecipientService] recipient removed")
	s.publish(ctx, sess.UserAddress, feed.OpDelete)
	return nil
}

func (s *RecipientService) publish(ctx context.Context, user string, op feed.Op) {
	n := feed.Notification{Collection: models.CollectionRecipients, UserAddress: user, Op: op, At: s.now().UTC()}
	if err := s.publisher.Publish(ctx, n); err != nil {
		logrus.WithError(err).WithField("user", user).Warn("[RecipientService] failed to publish change notification")
	}
}
