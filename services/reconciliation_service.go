package services

import (
	"bankledger/database"
	"bankledger/models"
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Reconciliation - сверка текущего баланса счета с суммой его проводок
type Reconciliation struct {
	AccountID        uuid.UUID
	AccountName      string
	Balance          decimal.Decimal
	LedgerTotal      decimal.Decimal
	Difference       decimal.Decimal
	TransactionCount int64
	Consistent       bool
	CheckedAt        time.Time
}

// ReconciliationService проверяет согласованность балансов. Балансы не изменяет.
type ReconciliationService struct {
	uow      *database.UnitOfWork
	logger   *zap.Logger
	interval time.Duration
}

// NewReconciliationService создает новый экземпляр ReconciliationService.
// interval <= 0 отключает периодическую сверку.
func NewReconciliationService(uow *database.UnitOfWork, logger *zap.Logger, interval time.Duration) *ReconciliationService {
	return &ReconciliationService{
		uow:      uow,
		logger:   logger.Named("reconciliation"),
		interval: interval,
	}
}

// VerifyAccount сверяет один счет
func (s *ReconciliationService) VerifyAccount(ctx context.Context, id uuid.UUID) (*Reconciliation, error) {
	var result *Reconciliation
	err := s.uow.Do(ctx, func(tx *gorm.DB) error {
		account, err := findAccount(tx, id)
		if err != nil {
			return err
		}
		result, err = reconcile(tx, account)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// VerifyAll сверяет все счета и возвращает только расхождения
func (s *ReconciliationService) VerifyAll(ctx context.Context) ([]Reconciliation, error) {
	var mismatches []Reconciliation
	err := s.uow.Do(ctx, func(tx *gorm.DB) error {
		var accounts []models.Account
		if err := tx.Order("name ASC").Find(&accounts).Error; err != nil {
			return errors.Wrap(err, "failed to list accounts")
		}
		for i := range accounts {
			result, err := reconcile(tx, &accounts[i])
			if err != nil {
				return err
			}
			if !result.Consistent {
				mismatches = append(mismatches, *result)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mismatches, nil
}

// Start запускает периодическую сверку до отмены ctx
func (s *ReconciliationService) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("periodic reconciliation disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.run(ctx)
			}
		}
	}()
}

func (s *ReconciliationService) run(ctx context.Context) {
	mismatches, err := s.VerifyAll(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("reconciliation failed", zap.Error(err))
		}
		return
	}
	for _, m := range mismatches {
		s.logger.Error("balance mismatch",
			zap.String("account_id", m.AccountID.String()),
			zap.String("account_name", m.AccountName),
			zap.String("balance", m.Balance.StringFixed(2)),
			zap.String("ledger_total", m.LedgerTotal.StringFixed(2)),
			zap.String("difference", m.Difference.StringFixed(2)),
		)
	}
	s.logger.Debug("reconciliation completed", zap.Int("mismatches", len(mismatches)))
}

func reconcile(tx *gorm.DB, account *models.Account) (*Reconciliation, error) {
	totals, err := kindTotals(tx.Where("account_id = ?", account.ID))
	if err != nil {
		return nil, err
	}
	total := signedTotal(totals)

	var count int64
	for _, t := range totals {
		count += t.Count
	}

	difference := account.CurrentBalance.Sub(total)
	return &Reconciliation{
		AccountID:        account.ID,
		AccountName:      account.Name,
		Balance:          account.CurrentBalance,
		LedgerTotal:      total,
		Difference:       difference,
		TransactionCount: count,
		Consistent:       difference.IsZero(),
		CheckedAt:        time.Now().UTC(),
	}, nil
}
