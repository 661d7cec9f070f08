package services

import (
	"bankledger/models"
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// MovementRequest представляет данные для пополнения или списания
type MovementRequest struct {
	AccountID   uuid.UUID       `json:"-"`
	Amount      decimal.Decimal `json:"amount"`
	OccurredOn  time.Time       `json:"date"`
	Description string          `json:"description" validate:"required,max=255"`
	Category    string          `json:"category" validate:"max=100"`
	ExternalRef string          `json:"external_ref" validate:"max=64"`
	PaymentRef  string          `json:"linked_payment_ref" validate:"max=64"`
	CreatedBy   string          `json:"-" validate:"max=100"`
}

// MovementResult - созданная проводка и новый баланс счета
type MovementResult struct {
	Transaction *models.Transaction
	Account     *models.Account
	NewBalance  decimal.Decimal
}

// TransactionFilter задает условия выборки проводок
type TransactionFilter struct {
	AccountID   *uuid.UUID
	Kind        models.TransactionKind
	Category    string
	ExternalRef string
	From        *time.Time
	To          *time.Time
	Page        int
	PageSize    int
}

// TransactionPage - страница проводок
type TransactionPage struct {
	Items    []models.Transaction
	Total    int64
	Page     int
	PageSize int
}

// Deposit пополняет счет
func (s *BankService) Deposit(ctx context.Context, req MovementRequest) (*MovementResult, error) {
	return s.recordMovement(ctx, models.TransactionKindDeposit, req)
}

// Withdraw списывает средства со счета. Овердрафт не допускается.
func (s *BankService) Withdraw(ctx context.Context, req MovementRequest) (*MovementResult, error) {
	return s.recordMovement(ctx, models.TransactionKindWithdrawal, req)
}

// recordMovement изменяет баланс одного счета и добавляет проводку в одной транзакции
func (s *BankService) recordMovement(ctx context.Context, kind models.TransactionKind, req MovementRequest) (*MovementResult, error) {
	start := time.Now()
	operation := string(kind)
	fields := []zap.Field{zap.String("account_id", req.AccountID.String()), zap.String("amount", req.Amount.String())}

	req.Description = strings.TrimSpace(req.Description)
	if kind != models.TransactionKindWithdrawal {
		req.PaymentRef = ""
	}
	if err := validateStruct(s.validator, req); err != nil {
		s.finish(operation, start, err, fields...)
		return nil, err
	}

	var result *MovementResult
	err := s.uow.Do(ctx, func(tx *gorm.DB) error {
		account, err := lockAccount(tx, req.AccountID)
		if err != nil {
			return err
		}
		if !account.IsActive {
			return inactiveAccount(account)
		}
		if err := checkAmount(req.Amount); err != nil {
			return err
		}

		var newBalance decimal.Decimal
		if kind.IsInflow() {
			newBalance = account.CurrentBalance.Add(req.Amount)
		} else {
			if account.CurrentBalance.LessThan(req.Amount) {
				return newError(KindInsufficientFunds,
					"insufficient funds on account %q: balance %s, requested %s",
					account.Name, account.CurrentBalance.StringFixed(2), req.Amount.StringFixed(2))
			}
			newBalance = account.CurrentBalance.Sub(req.Amount)
		}

		if err := setBalance(tx, account, newBalance); err != nil {
			return err
		}

		transaction := &models.Transaction{
			ID:           uuid.New(),
			AccountID:    account.ID,
			Kind:         kind,
			Amount:       req.Amount,
			OccurredOn:   occurrence(req.OccurredOn),
			Description:  req.Description,
			Category:     strings.TrimSpace(req.Category),
			BalanceAfter: newBalance,
			ExternalRef:  optional(req.ExternalRef),
			PaymentRef:   optional(req.PaymentRef),
			CreatedBy:    optional(req.CreatedBy),
		}
		if err := tx.Create(transaction).Error; err != nil {
			return errors.Wrap(err, "failed to save transaction")
		}

		result = &MovementResult{Transaction: transaction, Account: account, NewBalance: newBalance}
		return nil
	})
	if err != nil {
		s.finish(operation, start, err, fields...)
		return nil, err
	}

	s.finish(operation, start, nil, append(fields,
		zap.String("transaction_id", result.Transaction.ID.String()),
		zap.String("balance_after", result.NewBalance.StringFixed(2)),
	)...)
	s.notify(TransactionNotice{
		AccountName:  result.Account.Name,
		Currency:     result.Account.Currency,
		Action:       string(kind),
		Amount:       result.Transaction.Amount,
		BalanceAfter: result.NewBalance,
		OccurredOn:   result.Transaction.OccurredOn,
		Description:  result.Transaction.Description,
	})
	return result, nil
}

// GetTransaction возвращает проводку по ID
func (s *BankService) GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return findTransaction(s.uow.Reader(ctx), id)
}

// ListTransactions возвращает страницу проводок, начиная с самых новых
func (s *BankService) ListTransactions(ctx context.Context, filter TransactionFilter) (*TransactionPage, error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, newError(KindInvalidInput, "unknown transaction kind %q", filter.Kind)
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, newError(KindInvalidInput, "date range start is after its end")
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = defaultPageSize
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}

	page := &TransactionPage{Page: filter.Page, PageSize: filter.PageSize}
	err := s.uow.Do(ctx, func(tx *gorm.DB) error {
		if err := applyTransactionFilter(tx.Model(&models.Transaction{}), filter).Count(&page.Total).Error; err != nil {
			return errors.Wrap(err, "failed to count transactions")
		}
		return applyTransactionFilter(tx, filter).
			Order("occurred_on DESC").Order("created_at DESC").
			Limit(filter.PageSize).
			Offset((filter.Page - 1) * filter.PageSize).
			Find(&page.Items).Error
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list transactions")
	}
	return page, nil
}

func applyTransactionFilter(query *gorm.DB, filter TransactionFilter) *gorm.DB {
	if filter.AccountID != nil {
		query = query.Where("account_id = ?", *filter.AccountID)
	}
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.ExternalRef != "" {
		query = query.Where("external_ref = ?", filter.ExternalRef)
	}
	if filter.From != nil {
		query = query.Where("occurred_on >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("occurred_on <= ?", filter.To.UTC())
	}
	return query
}

func transactionNotFound(id uuid.UUID) *Error {
	return newError(KindNotFound, "transaction %s not found", id)
}

func findTransaction(db *gorm.DB, id uuid.UUID) (*models.Transaction, error) {
	var transaction models.Transaction
	if err := db.Where("id = ?", id).First(&transaction).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, transactionNotFound(id)
		}
		return nil, errors.Wrap(err, "failed to load transaction")
	}
	return &transaction, nil
}

// occurrence нормализует дату операции в UTC; нулевая дата означает "сейчас"
func occurrence(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

// notify отправляет уведомление после фиксации. Ошибка доставки только логируется.
func (s *BankService) notify(notice TransactionNotice) {
	if s.notifier == nil || notice.Amount.LessThan(s.opts.NotifyThreshold) {
		return
	}
	if err := s.notifier.NotifyTransaction(notice); err != nil {
		s.logger.Warn("failed to send transaction notification",
			zap.String("account_name", notice.AccountName),
			zap.String("action", notice.Action),
			zap.Error(err),
		)
	}
}
