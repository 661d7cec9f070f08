package services

import (
	"bankledger/database"
	"bankledger/models"
	"bankledger/utils"
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const openingBalanceCategory = "opening_balance"

// Options настраивает BankService
type Options struct {
	DefaultCurrency    string
	RecentTransactions int
	NotifyThreshold    decimal.Decimal
}

// BankService реализует реестр счетов и журнал проводок
type BankService struct {
	uow       *database.UnitOfWork
	validator *validator.Validate
	notifier  Notifier
	logger    *zap.Logger
	opts      Options
}

// NewBankService создает новый экземпляр BankService. notifier может быть nil.
func NewBankService(uow *database.UnitOfWork, notifier Notifier, logger *zap.Logger, opts Options) *BankService {
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = "USD"
	}
	if opts.RecentTransactions <= 0 {
		opts.RecentTransactions = 10
	}
	return &BankService{
		uow:       uow,
		validator: NewValidator(),
		notifier:  notifier,
		logger:    logger.Named("ledger"),
		opts:      opts,
	}
}

// WithTx возвращает сервис, выполняющий операции внутри внешней транзакции tx.
// Уведомления в этом режиме не отправляются: фиксацией управляет вызывающий код.
func (s *BankService) WithTx(tx *gorm.DB) *BankService {
	c := *s
	c.uow = s.uow.Within(tx)
	c.notifier = nil
	return &c
}

// CreateAccountRequest представляет данные для создания счета
type CreateAccountRequest struct {
	Name                string                 `json:"name" validate:"required,min=2,max=100"`
	Category            models.AccountCategory `json:"category" validate:"required,account_category"`
	InitialBalance      decimal.Decimal        `json:"initial_balance"`
	Currency            string                 `json:"currency" validate:"omitempty,currency"`
	BankName            string                 `json:"bank_name" validate:"max=100"`
	AccountNumberMasked string                 `json:"account_number_masked" validate:"max=32"`
	Notes               string                 `json:"notes"`
	CreatedBy           string                 `json:"-" validate:"max=100"`
}

// UpdateAccountRequest представляет частичное обновление метаданных счета.
// Баланс через эту операцию не меняется.
type UpdateAccountRequest struct {
	Name                *string                 `json:"name" validate:"omitempty,min=2,max=100"`
	Category            *models.AccountCategory `json:"category" validate:"omitempty,account_category"`
	Currency            *string                 `json:"currency" validate:"omitempty,currency"`
	IsActive            *bool                   `json:"is_active"`
	BankName            *string                 `json:"bank_name" validate:"omitempty,max=100"`
	AccountNumberMasked *string                 `json:"account_number_masked" validate:"omitempty,max=32"`
	Notes               *string                 `json:"notes"`
}

// KindTotal - количество и сумма проводок одного типа
type KindTotal struct {
	Count int64           `json:"count"`
	Total decimal.Decimal `json:"total"`
}

// BalanceSnapshot - проекция баланса счета только для чтения
type BalanceSnapshot struct {
	AccountID        uuid.UUID
	Name             string
	Currency         string
	IsActive         bool
	Balance          decimal.Decimal
	LastTransaction  *models.Transaction
	Totals           map[models.TransactionKind]KindTotal
	TotalInflow      decimal.Decimal
	TotalOutflow     decimal.Decimal
	TransactionCount int64
}

// AccountDetails - счет с последними проводками и агрегатами
type AccountDetails struct {
	Account            *models.Account
	RecentTransactions []models.Transaction
	Snapshot           *BalanceSnapshot
}

// CreateAccount создает новый активный счет.
// Начальный баланс оформляется проводкой opening_balance в той же транзакции.
func (s *BankService) CreateAccount(ctx context.Context, req CreateAccountRequest) (*models.Account, error) {
	start := time.Now()
	req.Name = strings.TrimSpace(req.Name)
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))

	if err := validateStruct(s.validator, req); err != nil {
		s.finish("create_account", start, err)
		return nil, err
	}
	if req.InitialBalance.IsNegative() {
		err := newError(KindInvalidAmount, "initial balance must not be negative, got %s", req.InitialBalance.String())
		s.finish("create_account", start, err)
		return nil, err
	}
	if !req.InitialBalance.Equal(req.InitialBalance.Round(2)) {
		err := newError(KindInvalidAmount, "initial balance %s has more than two decimal places", req.InitialBalance.String())
		s.finish("create_account", start, err)
		return nil, err
	}
	if req.Currency == "" {
		req.Currency = s.opts.DefaultCurrency
	}

	now := time.Now().UTC()
	account := &models.Account{
		ID:                  uuid.New(),
		Name:                req.Name,
		Category:            req.Category,
		Currency:            req.Currency,
		CurrentBalance:      req.InitialBalance,
		IsActive:            true,
		BankName:            req.BankName,
		AccountNumberMasked: req.AccountNumberMasked,
		Notes:               req.Notes,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	err := s.uow.Do(ctx, func(tx *gorm.DB) error {
		if err := ensureNameAvailable(tx, req.Name, uuid.Nil); err != nil {
			return err
		}
		if err := tx.Create(account).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return duplicateName(req.Name)
			}
			return errors.Wrap(err, "failed to create account")
		}
		if req.InitialBalance.IsPositive() {
			opening := &models.Transaction{
				AccountID:    account.ID,
				Kind:         models.TransactionKindDeposit,
				Amount:       req.InitialBalance,
				OccurredOn:   now,
				Description:  "Opening balance",
				Category:     openingBalanceCategory,
				BalanceAfter: req.InitialBalance,
				CreatedBy:    optional(req.CreatedBy),
			}
			if err := tx.Create(opening).Error; err != nil {
				return errors.Wrap(err, "failed to record opening balance")
			}
		}
		return nil
	})
	s.finish("create_account", start, err, zap.String("account_name", req.Name))
	if err != nil {
		return nil, err
	}
	return account, nil
}

// UpdateAccount обновляет метаданные счета, включая признак активности
func (s *BankService) UpdateAccount(ctx context.Context, id uuid.UUID, req UpdateAccountRequest) (*models.Account, error) {
	start := time.Now()
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		req.Name = &name
	}
	if req.Currency != nil {
		currency := strings.ToUpper(strings.TrimSpace(*req.Currency))
		req.Currency = &currency
	}
	if err := validateStruct(s.validator, req); err != nil {
		s.finish("update_account", start, err)
		return nil, err
	}

	var account *models.Account
	err := s.uow.Do(ctx, func(tx *gorm.DB) error {
		var err error
		account, err = lockAccount(tx, id)
		if err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if req.Name != nil && *req.Name != account.Name {
			if err := ensureNameAvailable(tx, *req.Name, account.ID); err != nil {
				return err
			}
			updates["name"] = *req.Name
			account.Name = *req.Name
		}
		if req.Category != nil {
			updates["category"] = *req.Category
			account.Category = *req.Category
		}
		if req.Currency != nil && *req.Currency != account.Currency {
			var count int64
			if err := tx.Model(&models.Transaction{}).Where("account_id = ?", account.ID).Count(&count).Error; err != nil {
				return errors.Wrap(err, "failed to count account transactions")
			}
			if count > 0 {
				return newError(KindInvalidInput, "currency of account %q cannot change once it has transactions", account.Name)
			}
			updates["currency"] = *req.Currency
			account.Currency = *req.Currency
		}
		if req.IsActive != nil {
			updates["is_active"] = *req.IsActive
			account.IsActive = *req.IsActive
		}
		if req.BankName != nil {
			updates["bank_name"] = *req.BankName
			account.BankName = *req.BankName
		}
		if req.AccountNumberMasked != nil {
			updates["account_number_masked"] = *req.AccountNumberMasked
			account.AccountNumberMasked = *req.AccountNumberMasked
		}
		if req.Notes != nil {
			updates["notes"] = *req.Notes
			account.Notes = *req.Notes
		}
		if len(updates) == 0 {
			return nil
		}

		account.UpdatedAt = time.Now().UTC()
		updates["updated_at"] = account.UpdatedAt
		if err := tx.Model(&models.Account{}).Where("id = ?", account.ID).Updates(updates).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return duplicateName(account.Name)
			}
			return errors.Wrap(err, "failed to update account")
		}
		return nil
	})
	s.finish("update_account", start, err, zap.String("account_id", id.String()))
	if err != nil {
		return nil, err
	}
	return account, nil
}

// GetAccount возвращает счет по ID
func (s *BankService) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return findAccount(s.uow.Reader(ctx), id)
}

// ListAccounts возвращает счета, упорядоченные по имени
func (s *BankService) ListAccounts(ctx context.Context, activeOnly bool) ([]models.Account, error) {
	query := s.uow.Reader(ctx).Order("name ASC")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	var accounts []models.Account
	if err := query.Find(&accounts).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list accounts")
	}
	return accounts, nil
}

// GetBalance возвращает снимок баланса и агрегаты по типам проводок
func (s *BankService) GetBalance(ctx context.Context, id uuid.UUID) (*BalanceSnapshot, error) {
	var snapshot *BalanceSnapshot
	err := s.uow.Do(ctx, func(tx *gorm.DB) error {
		account, err := findAccount(tx, id)
		if err != nil {
			return err
		}
		snapshot, err = balanceSnapshot(tx, account)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// GetAccountDetails возвращает счет, последние проводки и снимок баланса
func (s *BankService) GetAccountDetails(ctx context.Context, id uuid.UUID) (*AccountDetails, error) {
	details := &AccountDetails{}
	err := s.uow.Do(ctx, func(tx *gorm.DB) error {
		account, err := findAccount(tx, id)
		if err != nil {
			return err
		}
		details.Account = account

		if err := tx.Where("account_id = ?", id).
			Order("occurred_on DESC").Order("created_at DESC").
			Limit(s.opts.RecentTransactions).
			Find(&details.RecentTransactions).Error; err != nil {
			return errors.Wrap(err, "failed to load recent transactions")
		}

		details.Snapshot, err = balanceSnapshot(tx, account)
		return err
	})
	if err != nil {
		return nil, err
	}
	return details, nil
}

// finish записывает метрики и лог операции
func (s *BankService) finish(operation string, start time.Time, err error, fields ...zap.Field) {
	kind := KindOf(err)
	utils.GetMetrics().RecordLedgerOperation(operation, string(kind), err)
	if kind != "" {
		s.logger.Warn("ledger operation rejected", append(fields,
			zap.String("operation", operation),
			zap.String("error_kind", string(kind)),
			zap.Error(err),
		)...)
		return
	}
	utils.LogOperation(s.logger, operation, start, err, fields...)
}

func accountNotFound(id uuid.UUID) *Error {
	return newError(KindNotFound, "account %s not found", id)
}

func inactiveAccount(account *models.Account) *Error {
	return newError(KindInactiveAccount, "account %q is inactive", account.Name)
}

// findAccount загружает счет без блокировки
func findAccount(db *gorm.DB, id uuid.UUID) (*models.Account, error) {
	var account models.Account
	if err := db.Where("id = ?", id).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, accountNotFound(id)
		}
		return nil, errors.Wrap(err, "failed to load account")
	}
	return &account, nil
}

// lockAccount загружает счет с блокировкой строки до конца транзакции
func lockAccount(tx *gorm.DB, id uuid.UUID) (*models.Account, error) {
	return findAccount(tx.Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

// lockAccounts блокирует несколько счетов одним запросом в порядке возрастания ID,
// чтобы параллельные переводы не взаимоблокировались
func lockAccounts(tx *gorm.DB, ids ...uuid.UUID) (map[uuid.UUID]*models.Account, error) {
	var accounts []models.Account
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id").
		Find(&accounts).Error; err != nil {
		return nil, errors.Wrap(err, "failed to lock accounts")
	}

	result := make(map[uuid.UUID]*models.Account, len(accounts))
	for i := range accounts {
		result[accounts[i].ID] = &accounts[i]
	}
	for _, id := range ids {
		if _, ok := result[id]; !ok {
			return nil, accountNotFound(id)
		}
	}
	return result, nil
}

// setBalance сохраняет новый баланс заблокированного счета
func setBalance(tx *gorm.DB, account *models.Account, balance decimal.Decimal) error {
	now := time.Now().UTC()
	result := tx.Model(&models.Account{}).
		Where("id = ?", account.ID).
		Updates(map[string]interface{}{
			"current_balance": balance,
			"updated_at":      now,
		})
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update balance")
	}
	if result.RowsAffected != 1 {
		return errors.Errorf("balance update for account %s affected %d rows", account.ID, result.RowsAffected)
	}
	account.CurrentBalance = balance
	account.UpdatedAt = now
	return nil
}

// ensureNameAvailable проверяет уникальность имени без учета регистра
func ensureNameAvailable(tx *gorm.DB, name string, except uuid.UUID) error {
	var count int64
	query := tx.Model(&models.Account{}).Where("LOWER(name) = LOWER(?)", name)
	if except != uuid.Nil {
		query = query.Where("id <> ?", except)
	}
	if err := query.Count(&count).Error; err != nil {
		return errors.Wrap(err, "failed to check account name")
	}
	if count > 0 {
		return duplicateName(name)
	}
	return nil
}

// duplicateName также покрывает гонку двух запросов, прошедших проверку до вставки: их разводит уникальный индекс
func duplicateName(name string) error {
	return newError(KindDuplicateName, "account name %q is already in use", name)
}

type kindTotalRow struct {
	Kind  models.TransactionKind
	Count int64
	Total decimal.Decimal
}

// kindTotals агрегирует проводки по типам для уже отфильтрованного запроса
func kindTotals(query *gorm.DB) (map[models.TransactionKind]KindTotal, error) {
	var rows []kindTotalRow
	if err := query.Model(&models.Transaction{}).
		Select("kind, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total").
		Group("kind").
		Scan(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to aggregate transactions")
	}

	totals := make(map[models.TransactionKind]KindTotal, len(models.TransactionKinds))
	for _, kind := range models.TransactionKinds {
		totals[kind] = KindTotal{Total: decimal.Zero}
	}
	for _, row := range rows {
		totals[row.Kind] = KindTotal{Count: row.Count, Total: row.Total.Round(2)}
	}
	return totals, nil
}

// signedTotal возвращает сумму поступлений минус сумму списаний
func signedTotal(totals map[models.TransactionKind]KindTotal) decimal.Decimal {
	sum := decimal.Zero
	for kind, t := range totals {
		if kind.IsInflow() {
			sum = sum.Add(t.Total)
		} else {
			sum = sum.Sub(t.Total)
		}
	}
	return sum
}

func balanceSnapshot(tx *gorm.DB, account *models.Account) (*BalanceSnapshot, error) {
	totals, err := kindTotals(tx.Where("account_id = ?", account.ID))
	if err != nil {
		return nil, err
	}

	snapshot := &BalanceSnapshot{
		AccountID:    account.ID,
		Name:         account.Name,
		Currency:     account.Currency,
		IsActive:     account.IsActive,
		Balance:      account.CurrentBalance,
		Totals:       totals,
		TotalInflow:  decimal.Zero,
		TotalOutflow: decimal.Zero,
	}
	for kind, t := range totals {
		snapshot.TransactionCount += t.Count
		if kind.IsInflow() {
			snapshot.TotalInflow = snapshot.TotalInflow.Add(t.Total)
		} else {
			snapshot.TotalOutflow = snapshot.TotalOutflow.Add(t.Total)
		}
	}

	var last models.Transaction
	err = tx.Where("account_id = ?", account.ID).
		Order("occurred_on DESC").Order("created_at DESC").
		Limit(1).Find(&last).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to load last transaction")
	}
	if last.ID != uuid.Nil {
		snapshot.LastTransaction = &last
	}
	return snapshot, nil
}
