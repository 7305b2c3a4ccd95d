package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransferStatus string

const (
	TransferPending TransferStatus = "pending"
	TransferSent    TransferStatus = "sent"
	TransferFailed  TransferStatus = "failed"
)

// PayoutRecord is one prize transfer. At most one per (contest, user).
type PayoutRecord struct {
	ID          string          `json:"id" gorm:"primaryKey"`
	ContestID   string          `json:"contest_id" gorm:"not null;uniqueIndex:idx_payout_contest_user"`
	UserID      string          `json:"user_id" gorm:"not null;uniqueIndex:idx_payout_contest_user"`
	Rank        int             `json:"rank"`
	Position    int             `json:"position"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:numeric(12,2);not null"`
	Status      TransferStatus  `json:"status" gorm:"type:varchar(16);not null;index;default:'pending'"`
	Attempts    int             `json:"attempts" gorm:"default:0"`
	LastError   string          `json:"last_error,omitempty"`
	PaymentRef  string          `json:"payment_ref,omitempty"`
	NeedsManual bool            `json:"needs_manual" gorm:"default:false"`
	SentAt      *time.Time      `json:"sent_at,omitempty"`

	Timestamps
}

// RefundRecord returns an entry fee after cancellation. At most one per
// (contest, user).
type RefundRecord struct {
	ID          string          `json:"id" gorm:"primaryKey"`
	ContestID   string          `json:"contest_id" gorm:"not null;uniqueIndex:idx_refund_contest_user"`
	UserID      string          `json:"user_id" gorm:"not null;uniqueIndex:idx_refund_contest_user"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:numeric(12,2);not null"`
	PaymentRef  string          `json:"payment_ref,omitempty"` // original entry payment
	Status      TransferStatus  `json:"status" gorm:"type:varchar(16);not null;index;default:'pending'"`
	Attempts    int             `json:"attempts" gorm:"default:0"`
	LastError   string          `json:"last_error,omitempty"`
	NeedsManual bool            `json:"needs_manual" gorm:"default:false"`
	SentAt      *time.Time      `json:"sent_at,omitempty"`

	Timestamps
}
