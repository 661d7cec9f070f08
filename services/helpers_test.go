package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"bankledger/database"
	"bankledger/models"

	"github.com/bxcodec/faker/v3"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type stubNotifier struct {
	mu      sync.Mutex
	notices []TransactionNotice
	err     error
}

func (n *stubNotifier) NotifyTransaction(notice TransactionNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return n.err
}

func (n *stubNotifier) sent() []TransactionNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]TransactionNotice(nil), n.notices...)
}

type fixture struct {
	db       *gorm.DB
	uow      *database.UnitOfWork
	svc      *BankService
	notifier *stubNotifier
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// одно соединение: in-memory база живет, пока оно открыто, и транзакции выполняются по очереди
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))
	return db
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	db := newTestDB(t)
	uow := database.NewUnitOfWork(db)
	notifier := &stubNotifier{}
	return &fixture{
		db:       db,
		uow:      uow,
		svc:      NewBankService(uow, notifier, zap.NewNop(), opts),
		notifier: notifier,
	}
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func uniqueName() string {
	return faker.Word() + "-" + uuid.NewString()[:8]
}

func assertAmount(t *testing.T, expected string, actual decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Equal(t, expected, actual.StringFixed(2), msgAndArgs...)
}

func assertKind(t *testing.T, expected ErrorKind, err error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, expected, KindOf(err), "unexpected error: %v", err)
}

func (f *fixture) createAccount(t *testing.T, name, initial string) *models.Account {
	t.Helper()
	account, err := f.svc.CreateAccount(context.Background(), CreateAccountRequest{
		Name:           name,
		Category:       models.AccountCategoryChecking,
		InitialBalance: amount(initial),
	})
	require.NoError(t, err)
	return account
}

func (f *fixture) deposit(t *testing.T, accountID uuid.UUID, value string) *MovementResult {
	t.Helper()
	result, err := f.svc.Deposit(context.Background(), MovementRequest{
		AccountID:   accountID,
		Amount:      amount(value),
		Description: faker.Sentence(),
	})
	require.NoError(t, err)
	return result
}

func (f *fixture) withdraw(t *testing.T, accountID uuid.UUID, value string) *MovementResult {
	t.Helper()
	result, err := f.svc.Withdraw(context.Background(), MovementRequest{
		AccountID:   accountID,
		Amount:      amount(value),
		Description: faker.Sentence(),
	})
	require.NoError(t, err)
	return result
}

func (f *fixture) balance(t *testing.T, accountID uuid.UUID) decimal.Decimal {
	t.Helper()
	account, err := f.svc.GetAccount(context.Background(), accountID)
	require.NoError(t, err)
	return account.CurrentBalance
}

func (f *fixture) countTransactions(t *testing.T, accountID uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Transaction{}).Where("account_id = ?", accountID).Count(&n).Error)
	return n
}

// assertConsistent проверяет, что баланс равен сумме проводок счета
func (f *fixture) assertConsistent(t *testing.T, accountID uuid.UUID) {
	t.Helper()
	result, err := NewReconciliationService(f.uow, zap.NewNop(), 0).VerifyAccount(context.Background(), accountID)
	require.NoError(t, err)
	assert.True(t, result.Consistent, "balance %s, ledger total %s", result.Balance, result.LedgerTotal)
}
