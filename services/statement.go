package services

import (
	"bankledger/models"
	"context"
	"strconv"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StatementRequest задает счет и период выписки. Пустые границы означают открытый период.
type StatementRequest struct {
	AccountID uuid.UUID
	From      *time.Time
	To        *time.Time
}

// Statement формирует XML-выписку по счету за период.
// Входящий остаток считается по проводкам до начала периода.
func (s *BankService) Statement(ctx context.Context, req StatementRequest) (*etree.Document, error) {
	if req.From != nil && req.To != nil && req.From.After(*req.To) {
		return nil, newError(KindInvalidInput, "date range start is after its end")
	}

	var (
		account *models.Account
		opening decimal.Decimal
		entries []models.Transaction
	)
	err := s.uow.Do(ctx, func(tx *gorm.DB) error {
		var err error
		account, err = findAccount(tx, req.AccountID)
		if err != nil {
			return err
		}

		opening = decimal.Zero
		if req.From != nil {
			totals, err := kindTotals(tx.Where("account_id = ? AND occurred_on < ?", account.ID, req.From.UTC()))
			if err != nil {
				return err
			}
			opening = signedTotal(totals)
		}

		return applyTransactionFilter(tx, TransactionFilter{AccountID: &account.ID, From: req.From, To: req.To}).
			Order("occurred_on ASC").Order("created_at ASC").
			Find(&entries).Error
	})
	if err != nil {
		if KindOf(err) != "" {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to build statement")
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("Statement")
	root.CreateAttr("generatedAt", time.Now().UTC().Format(time.RFC3339))

	acc := root.CreateElement("Account")
	acc.CreateAttr("id", account.ID.String())
	acc.CreateAttr("currency", account.Currency)
	acc.CreateElement("Name").SetText(account.Name)
	acc.CreateElement("Category").SetText(string(account.Category))
	if account.BankName != "" {
		acc.CreateElement("BankName").SetText(account.BankName)
	}
	if account.AccountNumberMasked != "" {
		acc.CreateElement("Number").SetText(account.AccountNumberMasked)
	}

	period := root.CreateElement("Period")
	if req.From != nil {
		period.CreateAttr("from", req.From.UTC().Format(time.RFC3339))
	}
	if req.To != nil {
		period.CreateAttr("to", req.To.UTC().Format(time.RFC3339))
	}

	root.CreateElement("OpeningBalance").SetText(opening.StringFixed(2))

	list := root.CreateElement("Entries")
	list.CreateAttr("count", strconv.Itoa(len(entries)))
	closing := opening
	inflow, outflow := decimal.Zero, decimal.Zero
	for _, t := range entries {
		closing = closing.Add(t.SignedAmount())
		if t.Kind.IsInflow() {
			inflow = inflow.Add(t.Amount)
		} else {
			outflow = outflow.Add(t.Amount)
		}

		entry := list.CreateElement("Entry")
		entry.CreateAttr("id", t.ID.String())
		entry.CreateAttr("kind", string(t.Kind))
		entry.CreateElement("Date").SetText(t.OccurredOn.UTC().Format(time.RFC3339))
		entry.CreateElement("Amount").SetText(t.SignedAmount().StringFixed(2))
		entry.CreateElement("BalanceAfter").SetText(t.BalanceAfter.StringFixed(2))
		if t.Description != "" {
			entry.CreateElement("Description").SetText(t.Description)
		}
		if t.Category != "" {
			entry.CreateElement("Category").SetText(t.Category)
		}
		if t.ExternalRef != nil {
			entry.CreateElement("ExternalRef").SetText(*t.ExternalRef)
		}
		if t.LinkedTransactionID != nil {
			entry.CreateElement("LinkedTransaction").SetText(t.LinkedTransactionID.String())
		}
	}

	root.CreateElement("TotalInflow").SetText(inflow.StringFixed(2))
	root.CreateElement("TotalOutflow").SetText(outflow.StringFixed(2))
	root.CreateElement("ClosingBalance").SetText(closing.StringFixed(2))

	doc.Indent(2)
	return doc, nil
}
