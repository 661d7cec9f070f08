package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountCategory представляет категорию счета
type AccountCategory string

const (
	AccountCategoryChecking   AccountCategory = "checking"
	AccountCategorySavings    AccountCategory = "savings"
	AccountCategoryCreditCard AccountCategory = "credit_card"
	AccountCategoryCash       AccountCategory = "cash"
	AccountCategoryLoan       AccountCategory = "loan"
	AccountCategoryOther      AccountCategory = "other"
)

// Valid сообщает, входит ли категория в известный набор
func (c AccountCategory) Valid() bool {
	switch c {
	case AccountCategoryChecking, AccountCategorySavings, AccountCategoryCreditCard,
		AccountCategoryCash, AccountCategoryLoan, AccountCategoryOther:
		return true
	}
	return false
}

// Account представляет счет компании (банковский счет, касса, кредитная карта).
// CurrentBalance меняется только внутри операций леджера.
type Account struct {
	ID                  uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name                string          `gorm:"column:name;uniqueIndex;not null;size:100"`
	Category            AccountCategory `gorm:"column:category;not null;size:20"`
	Currency            string          `gorm:"column:currency;not null;size:3"`
	CurrentBalance      decimal.Decimal `gorm:"column:current_balance;type:decimal(20,2);not null"`
	IsActive            bool            `gorm:"column:is_active;not null"`
	BankName            string          `gorm:"column:bank_name;size:100"`
	AccountNumberMasked string          `gorm:"column:account_number_masked;size:32"`
	Notes               string          `gorm:"column:notes;type:text"`
	CreatedAt           time.Time       `gorm:"column:created_at"`
	UpdatedAt           time.Time       `gorm:"column:updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}
