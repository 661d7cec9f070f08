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

const transferCategory = "transfer"

// TransferRequest представляет данные для перевода между счетами
type TransferRequest struct {
	FromAccountID uuid.UUID       `json:"from_account_id" validate:"required"`
	ToAccountID   uuid.UUID       `json:"to_account_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	OccurredOn    time.Time       `json:"date"`
	Description   string          `json:"description" validate:"max=255"`
	Category      string          `json:"category" validate:"max=100"`
	ExternalRef   string          `json:"external_ref" validate:"max=64"`
	CreatedBy     string          `json:"-" validate:"max=100"`
}

// TransferResult - обе ноги перевода и новые балансы
type TransferResult struct {
	Outgoing    *models.Transaction
	Incoming    *models.Transaction
	FromAccount *models.Account
	ToAccount   *models.Account
	FromBalance decimal.Decimal
	ToBalance   decimal.Decimal
}

// Transfer переводит средства между двумя разными счетами.
// Обе проводки и оба баланса сохраняются в одной транзакции.
func (s *BankService) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	start := time.Now()
	fields := []zap.Field{
		zap.String("from_account_id", req.FromAccountID.String()),
		zap.String("to_account_id", req.ToAccountID.String()),
		zap.String("amount", req.Amount.String()),
	}

	req.Description = strings.TrimSpace(req.Description)
	if err := validateStruct(s.validator, req); err != nil {
		s.finish("transfer", start, err, fields...)
		return nil, err
	}
	if req.FromAccountID == req.ToAccountID {
		err := newError(KindSameAccount, "cannot transfer from account %s to itself", req.FromAccountID)
		s.finish("transfer", start, err, fields...)
		return nil, err
	}

	var result *TransferResult
	err := s.uow.Do(ctx, func(tx *gorm.DB) error {
		accounts, err := lockAccounts(tx, req.FromAccountID, req.ToAccountID)
		if err != nil {
			return err
		}
		from, to := accounts[req.FromAccountID], accounts[req.ToAccountID]
		if !from.IsActive {
			return inactiveAccount(from)
		}
		if !to.IsActive {
			return inactiveAccount(to)
		}
		if err := checkAmount(req.Amount); err != nil {
			return err
		}
		if from.Currency != to.Currency {
			return newError(KindInvalidInput, "cannot transfer between %s account %q and %s account %q",
				from.Currency, from.Name, to.Currency, to.Name)
		}
		if from.CurrentBalance.LessThan(req.Amount) {
			return newError(KindInsufficientFunds,
				"insufficient funds on account %q: balance %s, requested %s",
				from.Name, from.CurrentBalance.StringFixed(2), req.Amount.StringFixed(2))
		}

		fromBalance := from.CurrentBalance.Sub(req.Amount)
		toBalance := to.CurrentBalance.Add(req.Amount)
		if err := setBalance(tx, from, fromBalance); err != nil {
			return err
		}
		if err := setBalance(tx, to, toBalance); err != nil {
			return err
		}

		description := req.Description
		if description == "" {
			description = "Transfer from " + from.Name + " to " + to.Name
		}
		category := strings.TrimSpace(req.Category)
		if category == "" {
			category = transferCategory
		}

		// Идентификаторы выдаются заранее, чтобы обе ноги сразу ссылались друг на друга
		outID, inID := uuid.New(), uuid.New()
		occurredOn := occurrence(req.OccurredOn)
		outgoing := &models.Transaction{
			ID:                  outID,
			AccountID:           from.ID,
			Kind:                models.TransactionKindTransferOut,
			Amount:              req.Amount,
			OccurredOn:          occurredOn,
			Description:         description,
			Category:            category,
			BalanceAfter:        fromBalance,
			ExternalRef:         optional(req.ExternalRef),
			CreatedBy:           optional(req.CreatedBy),
			LinkedTransactionID: &inID,
		}
		incoming := &models.Transaction{
			ID:                  inID,
			AccountID:           to.ID,
			Kind:                models.TransactionKindTransferIn,
			Amount:              req.Amount,
			OccurredOn:          occurredOn,
			Description:         description,
			Category:            category,
			BalanceAfter:        toBalance,
			ExternalRef:         optional(req.ExternalRef),
			CreatedBy:           optional(req.CreatedBy),
			LinkedTransactionID: &outID,
		}
		if err := tx.Create(outgoing).Error; err != nil {
			return errors.Wrap(err, "failed to save outgoing transfer leg")
		}
		if err := tx.Create(incoming).Error; err != nil {
			return errors.Wrap(err, "failed to save incoming transfer leg")
		}

		result = &TransferResult{
			Outgoing:    outgoing,
			Incoming:    incoming,
			FromAccount: from,
			ToAccount:   to,
			FromBalance: fromBalance,
			ToBalance:   toBalance,
		}
		return nil
	})
	if err != nil {
		s.finish("transfer", start, err, fields...)
		return nil, err
	}

	s.finish("transfer", start, nil, append(fields,
		zap.String("outgoing_id", result.Outgoing.ID.String()),
		zap.String("incoming_id", result.Incoming.ID.String()),
	)...)
	s.notify(TransactionNotice{
		AccountName:  result.FromAccount.Name,
		Counterparty: result.ToAccount.Name,
		Currency:     result.FromAccount.Currency,
		Action:       "transfer",
		Amount:       req.Amount,
		BalanceAfter: result.FromBalance,
		OccurredOn:   result.Outgoing.OccurredOn,
		Description:  result.Outgoing.Description,
	})
	return result, nil
}
