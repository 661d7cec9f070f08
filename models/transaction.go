package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransactionKind представляет тип проводки
type TransactionKind string

const (
	TransactionKindDeposit     TransactionKind = "deposit"
	TransactionKindWithdrawal  TransactionKind = "withdrawal"
	TransactionKindTransferIn  TransactionKind = "transfer_in"
	TransactionKindTransferOut TransactionKind = "transfer_out"
)

// TransactionKinds перечисляет все типы в порядке вывода
var TransactionKinds = []TransactionKind{
	TransactionKindDeposit,
	TransactionKindWithdrawal,
	TransactionKindTransferIn,
	TransactionKindTransferOut,
}

// Valid сообщает, входит ли тип в закрытый набор
func (k TransactionKind) Valid() bool {
	switch k {
	case TransactionKindDeposit, TransactionKindWithdrawal, TransactionKindTransferIn, TransactionKindTransferOut:
		return true
	}
	return false
}

// IsInflow сообщает, увеличивает ли проводка баланс
func (k TransactionKind) IsInflow() bool {
	return k == TransactionKindDeposit || k == TransactionKindTransferIn
}

// IsTransferLeg сообщает, является ли проводка частью перевода
func (k TransactionKind) IsTransferLeg() bool {
	return k == TransactionKindTransferIn || k == TransactionKindTransferOut
}

// Transaction представляет неизменяемую проводку по одному счету.
// BalanceAfter - снимок баланса на момент фиксации, он не пересчитывается при удалении других проводок.
type Transaction struct {
	ID                  uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	AccountID           uuid.UUID       `gorm:"column:account_id;type:uuid;not null;index"`
	Kind                TransactionKind `gorm:"column:kind;not null;size:20;index"`
	Amount              decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null"`
	OccurredOn          time.Time       `gorm:"column:occurred_on;not null;index"`
	Description         string          `gorm:"column:description;size:255"`
	Category            string          `gorm:"column:category;size:100;index"`
	BalanceAfter        decimal.Decimal `gorm:"column:balance_after;type:decimal(20,2);not null"`
	ExternalRef         *string         `gorm:"column:external_ref;size:64;index"`
	PaymentRef          *string         `gorm:"column:payment_ref;size:64"`
	CreatedBy           *string         `gorm:"column:created_by;size:100"`
	LinkedTransactionID *uuid.UUID      `gorm:"column:linked_transaction_id;type:uuid;index"`
	CreatedAt           time.Time       `gorm:"column:created_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// SignedAmount возвращает сумму со знаком: поступления положительны, списания отрицательны
func (t *Transaction) SignedAmount() decimal.Decimal {
	if t.Kind.IsInflow() {
		return t.Amount
	}
	return t.Amount.Neg()
}

// BeforeCreate хук для валидации перед созданием
func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if !t.Kind.Valid() {
		return errors.New("unknown transaction kind: " + string(t.Kind))
	}
	if !t.Amount.IsPositive() {
		return errors.New("transaction amount must be positive")
	}
	if t.Kind.IsTransferLeg() != (t.LinkedTransactionID != nil) {
		return errors.New("only transfer legs carry a linked transaction")
	}
	return nil
}
