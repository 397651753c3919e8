package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction kinds. Amounts are signed: credits positive, debits negative.
const (
	TxnDeposit      = "deposit"
	TxnWithdrawal   = "withdrawal"
	TxnOrderPayment = "order_payment"
	TxnTaskPayment  = "task_payment"
	TxnRefund       = "refund"
)

// Transaction statuses.
const (
	TxnPending   = "pending"
	TxnCompleted = "completed"
	TxnRejected  = "rejected"
)

// Payment methods. MethodBalance settles immediately; the external methods
// stay pending until a gateway callback resolves them.
const (
	MethodBalance      = "balance"
	MethodBankTransfer = "bank_transfer"
	MethodCrypto       = "crypto"
	MethodCard         = "card"
)

type Transaction struct {
	ID          uuid.UUID       `json:"id"`
	AccountID   uuid.UUID       `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	Kind        string          `json:"kind"`
	Status      string          `json:"status"`
	Method      string          `json:"method,omitempty"`
	OrderID     *uuid.UUID      `json:"order_id,omitempty"`
	Details     json.RawMessage `json:"details,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}
