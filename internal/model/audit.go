package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Distribution is one audit record of a faucet payout attempt. Rows
// are written best effort after each request, successful or not.
type Distribution struct {
	ID        string          `json:"id" gorm:"primaryKey"`
	UserID    string          `json:"user_id" gorm:"index"`
	Recipient string          `json:"recipient"`
	Token     string          `json:"token"`
	Amount    decimal.Decimal `json:"amount" gorm:"type:numeric"`
	TxHash    string          `json:"tx_hash"`
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	CreatedAt time.Time       `json:"created_at" gorm:"index"`
}

func (Distribution) TableName() string { return "distributions" }
