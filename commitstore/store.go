// Package commitstore persists commit-reveal secrets keyed by question id.
// Salts are encrypted at rest; the store exclusively owns the encrypted salt
// until the record is deleted after a successful reveal. Local records are a
// cache of secrets, not authoritative state: the chain decides finality.
package commitstore

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	oerrors "github.com/lalalune/babylon-oracle/errors"
	"github.com/lalalune/babylon-oracle/secrets"
	"github.com/lalalune/babylon-oracle/store"
)

// Commitment is a decrypted view of a stored record.
type Commitment struct {
	QuestionID string
	SessionID  string
	Salt       string // plaintext 0x-prefixed hex salt
	Commitment string // public hash
	CreatedAt  time.Time
}

// Store provides encrypted, idempotent storage of commitments.
type Store struct {
	db     *gorm.DB
	cipher *secrets.Cipher
	logger zerolog.Logger
}

// NewStore creates a new commitment store.
func NewStore(db *gorm.DB, cipher *secrets.Cipher, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		cipher: cipher,
		logger: logger.With().Str("component", "commitment_store").Logger(),
	}
}

// Store upserts a commitment record by question id. The commit flow writes the
// record once before the session id is known and once more after the
// transaction confirms; both writes land on the same row. The salt is
// re-encrypted on every write.
func (s *Store) Store(c Commitment) (*Commitment, error) {
	encrypted, err := s.cipher.Encrypt(c.Salt)
	if err != nil {
		return nil, err
	}

	var record store.StoredCommitment
	result := s.db.Where("question_id = ?", c.QuestionID).First(&record)

	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, oerrors.NewDatabaseError("failed to query commitment", result.Error)
	}

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		record = store.StoredCommitment{
			QuestionID:    c.QuestionID,
			SessionID:     c.SessionID,
			SaltEncrypted: encrypted,
			Commitment:    c.Commitment,
		}
		if err := s.db.Create(&record).Error; err != nil {
			return nil, oerrors.NewDatabaseError("failed to create commitment", err)
		}
	} else {
		record.SessionID = c.SessionID
		record.SaltEncrypted = encrypted
		record.Commitment = c.Commitment
		if err := s.db.Save(&record).Error; err != nil {
			return nil, oerrors.NewDatabaseError("failed to update commitment", err)
		}
	}

	s.logger.Debug().
		Str("question_id", c.QuestionID).
		Str("session_id", c.SessionID).
		Msg("stored commitment")

	return &Commitment{
		QuestionID: record.QuestionID,
		SessionID:  record.SessionID,
		Salt:       c.Salt,
		Commitment: record.Commitment,
		CreatedAt:  record.CreatedAt,
	}, nil
}

// Retrieve returns the decrypted commitment for a question, or (nil, nil)
// when no record exists so callers can branch on "nothing to reveal".
// Decryption failures are fatal for the call: a wrong salt must never be
// returned silently.
func (s *Store) Retrieve(questionID string) (*Commitment, error) {
	var record store.StoredCommitment
	result := s.db.Where("question_id = ?", questionID).First(&record)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, oerrors.NewDatabaseError("failed to query commitment", result.Error)
	}

	salt, err := s.cipher.Decrypt(record.SaltEncrypted)
	if err != nil {
		return nil, err
	}

	return &Commitment{
		QuestionID: record.QuestionID,
		SessionID:  record.SessionID,
		Salt:       salt,
		Commitment: record.Commitment,
		CreatedAt:  record.CreatedAt,
	}, nil
}

// Delete removes the record for a question. Deleting a nonexistent key is not
// an error: reveal may be retried after a crash between "reveal confirmed"
// and "local delete executed".
func (s *Store) Delete(questionID string) error {
	result := s.db.Where("question_id = ?", questionID).Delete(&store.StoredCommitment{})
	if result.Error != nil {
		return oerrors.NewDatabaseError("failed to delete commitment", result.Error)
	}
	if result.RowsAffected == 0 {
		s.logger.Debug().
			Str("question_id", questionID).
			Msg("delete of nonexistent commitment, ignoring")
	}
	return nil
}

// ListPending returns every stored commitment ordered by creation time,
// decrypting each salt. This is a full scan intended for recovery and admin
// use: records that were committed but never revealed surface here for an
// external reconciliation job.
func (s *Store) ListPending() ([]Commitment, error) {
	var records []store.StoredCommitment
	if err := s.db.Order("created_at ASC").Find(&records).Error; err != nil {
		return nil, oerrors.NewDatabaseError("failed to list commitments", err)
	}

	out := make([]Commitment, 0, len(records))
	for _, record := range records {
		salt, err := s.cipher.Decrypt(record.SaltEncrypted)
		if err != nil {
			return nil, errors.Wrapf(err, "record for question %s", record.QuestionID)
		}
		out = append(out, Commitment{
			QuestionID: record.QuestionID,
			SessionID:  record.SessionID,
			Salt:       salt,
			Commitment: record.Commitment,
			CreatedAt:  record.CreatedAt,
		})
	}
	return out, nil
}
