// Package store contains the GORM-backed SQLite models used by the oracle.
//
// Database structure (database file: oracle_data.db):
//
//	stored_commitments   local cache of commit-reveal secrets, one row per question
//	oracle_transactions  audit log of every transaction submission attempt
package store

import (
	"time"
)

// Transaction types recorded in the audit log.
const (
	TxTypeCommit = "commit"
	TxTypeReveal = "reveal"
	// TxTypeResolve is written by the game engine's resolution submissions,
	// which share this audit table.
	TxTypeResolve = "resolve"
)

// Transaction statuses recorded in the audit log.
const (
	TxStatusPending   = "pending"
	TxStatusConfirmed = "confirmed"
	TxStatusFailed    = "failed"
)

// StoredCommitment is the local record of a committed game's secrets.
// The salt is encrypted at rest; the commitment hash is public. SessionID is
// empty until the commit transaction confirms and its event is parsed.
//
// Rows are deleted with a hard delete: a revealed question must read back as
// not-found, and a re-commit of the same question must not collide with a
// soft-deleted row on the unique index.
type StoredCommitment struct {
	ID            uint   `gorm:"primarykey"`
	QuestionID    string `gorm:"uniqueIndex;not null"`
	SessionID     string `gorm:"index"`
	SaltEncrypted string `gorm:"type:text;not null"`
	Commitment    string `gorm:"not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OracleTransaction is one submission attempt, the unit of observability.
// QuestionID is empty for batch headers that cover multiple questions.
type OracleTransaction struct {
	ID          uint   `gorm:"primarykey"`
	RecordID    string `gorm:"uniqueIndex;not null"` // UUID assigned at creation
	QuestionID  string `gorm:"index"`
	TxType      string `gorm:"index;not null"` // "commit", "reveal", or "resolve"
	TxHash      string `gorm:"index"`
	Status      string `gorm:"index;not null"` // "pending", "confirmed", or "failed"
	BlockNumber uint64
	GasUsed     uint64
	GasPrice    string // effective gas price in wei, set on confirmation
	Error       string `gorm:"type:text"`
	RetryCount  int // earlier attempts for the same question and type
	CreatedAt   time.Time
	ConfirmedAt *time.Time
}
