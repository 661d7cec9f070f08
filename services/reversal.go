package services

import (
	"bankledger/models"
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ReversedLeg описывает одну удаленную проводку и изменение баланса ее счета
type ReversedLeg struct {
	TransactionID   uuid.UUID
	Kind            models.TransactionKind
	AccountID       uuid.UUID
	AccountName     string
	Currency        string
	Amount          decimal.Decimal
	PreviousBalance decimal.Decimal
	NewBalance      decimal.Decimal
}

// ReversalResult - результат отмены проводки. Для перевода содержит обе ноги.
type ReversalResult struct {
	Legs []ReversedLeg
}

// DeleteTransaction отменяет проводку и восстанавливает баланс счета.
// Нога перевода удаляется только вместе с парной проводкой.
func (s *BankService) DeleteTransaction(ctx context.Context, id uuid.UUID) (*ReversalResult, error) {
	start := time.Now()
	fields := []zap.Field{zap.String("transaction_id", id.String())}

	result := &ReversalResult{}
	err := s.uow.Do(ctx, func(tx *gorm.DB) error {
		transaction, err := findTransaction(tx, id)
		if err != nil {
			return err
		}
		legs := []*models.Transaction{transaction}
		if transaction.LinkedTransactionID != nil {
			pair, err := findTransaction(tx, *transaction.LinkedTransactionID)
			if err != nil {
				if KindOf(err) == KindNotFound {
					return errors.Errorf("transfer leg %s references missing transaction %s",
						transaction.ID, *transaction.LinkedTransactionID)
				}
				return err
			}
			legs = append(legs, pair)
		}

		accountIDs := make([]uuid.UUID, 0, len(legs))
		for _, leg := range legs {
			accountIDs = append(accountIDs, leg.AccountID)
		}
		accounts, err := lockAccounts(tx, accountIDs...)
		if err != nil {
			return err
		}

		// Все проверки выполняются до первой записи
		newBalances := make(map[uuid.UUID]decimal.Decimal, len(accounts))
		for _, leg := range legs {
			account := accounts[leg.AccountID]
			previous, ok := newBalances[account.ID]
			if !ok {
				previous = account.CurrentBalance
			}
			next := previous.Sub(leg.SignedAmount())
			if next.IsNegative() {
				return newError(KindNegativeBalance,
					"reversing %s of %s would make balance of account %q negative: balance %s",
					leg.Kind, leg.Amount.StringFixed(2), account.Name, previous.StringFixed(2))
			}
			newBalances[account.ID] = next
			result.Legs = append(result.Legs, ReversedLeg{
				TransactionID:   leg.ID,
				Kind:            leg.Kind,
				AccountID:       account.ID,
				AccountName:     account.Name,
				Currency:        account.Currency,
				Amount:          leg.Amount,
				PreviousBalance: previous,
				NewBalance:      next,
			})
		}

		ids := make([]uuid.UUID, 0, len(legs))
		for _, leg := range legs {
			ids = append(ids, leg.ID)
		}
		deleted := tx.Where("id IN ?", ids).Delete(&models.Transaction{})
		if deleted.Error != nil {
			return errors.Wrap(deleted.Error, "failed to delete transaction")
		}
		if deleted.RowsAffected != int64(len(ids)) {
			return transactionNotFound(id)
		}

		for accountID, balance := range newBalances {
			if err := setBalance(tx, accounts[accountID], balance); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.finish("delete_transaction", start, err, fields...)
		return nil, err
	}

	s.finish("delete_transaction", start, nil, append(fields, zap.Int("legs", len(result.Legs)))...)
	first := result.Legs[0]
	notice := TransactionNotice{
		AccountName:  first.AccountName,
		Currency:     first.Currency,
		Action:       "reversal of " + string(first.Kind),
		Amount:       first.Amount,
		BalanceAfter: first.NewBalance,
		OccurredOn:   time.Now().UTC(),
	}
	if len(result.Legs) > 1 {
		notice.Counterparty = result.Legs[1].AccountName
	}
	s.notify(notice)
	return result, nil
}
