package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"bankledger/database"
	"bankledger/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDepositUpdatesBalanceAndSnapshot(t *testing.T) {
	f := newFixture(t, Options{})
	cash := f.createAccount(t, "Cash", "0")

	result, err := f.svc.Deposit(context.Background(), MovementRequest{
		AccountID:   cash.ID,
		Amount:      amount("500.00"),
		OccurredOn:  day("2024-05-01"),
		Description: "Initial float",
		Category:    "float",
		ExternalRef: "INV-1",
		CreatedBy:   "ops@example.com",
	})
	require.NoError(t, err)

	assertAmount(t, "500.00", result.NewBalance)
	assertAmount(t, "500.00", result.Transaction.BalanceAfter)
	assert.Equal(t, models.TransactionKindDeposit, result.Transaction.Kind)
	assert.Nil(t, result.Transaction.LinkedTransactionID)
	require.NotNil(t, result.Transaction.ExternalRef)
	assert.Equal(t, "INV-1", *result.Transaction.ExternalRef)
	assertAmount(t, "500.00", f.balance(t, cash.ID))

	stored, err := f.svc.GetTransaction(context.Background(), result.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, "Initial float", stored.Description)
	require.NotNil(t, stored.CreatedBy)
	assert.Equal(t, "ops@example.com", *stored.CreatedBy)
	f.assertConsistent(t, cash.ID)
}

func TestWithdrawInsufficientFundsLeavesBalance(t *testing.T) {
	f := newFixture(t, Options{})
	cash := f.createAccount(t, "Cash", "0")
	f.deposit(t, cash.ID, "500.00")

	_, err := f.svc.Withdraw(context.Background(), MovementRequest{
		AccountID:   cash.ID,
		Amount:      amount("600.00"),
		Description: "too much",
	})
	assertKind(t, KindInsufficientFunds, err)
	assert.True(t, errors.Is(err, ErrInsufficientFunds))
	assert.Contains(t, err.Error(), "500.00")
	assert.Contains(t, err.Error(), "600.00")

	assertAmount(t, "500.00", f.balance(t, cash.ID))
	assert.Equal(t, int64(1), f.countTransactions(t, cash.ID))
}

func TestWithdrawEntireBalance(t *testing.T) {
	f := newFixture(t, Options{})
	cash := f.createAccount(t, "Cash", "75.25")

	result, err := f.svc.Withdraw(context.Background(), MovementRequest{
		AccountID:   cash.ID,
		Amount:      amount("75.25"),
		Description: "sweep",
		PaymentRef:  "PAY-7",
	})
	require.NoError(t, err)
	assertAmount(t, "0.00", result.NewBalance)
	require.NotNil(t, result.Transaction.PaymentRef)
	assert.Equal(t, "PAY-7", *result.Transaction.PaymentRef)
}

func TestDepositDropsPaymentRef(t *testing.T) {
	f := newFixture(t, Options{})
	cash := f.createAccount(t, "Cash", "0")

	result, err := f.svc.Deposit(context.Background(), MovementRequest{
		AccountID:   cash.ID,
		Amount:      amount("1"),
		Description: "refund",
		PaymentRef:  "PAY-1",
	})
	require.NoError(t, err)
	assert.Nil(t, result.Transaction.PaymentRef)
}

func TestMovementRejections(t *testing.T) {
	f := newFixture(t, Options{})
	cash := f.createAccount(t, "Cash", "100")
	closed := f.createAccount(t, "Closed", "10")
	inactive := false
	_, err := f.svc.UpdateAccount(context.Background(), closed.ID, UpdateAccountRequest{IsActive: &inactive})
	require.NoError(t, err)

	tests := []struct {
		name string
		req  MovementRequest
		kind ErrorKind
	}{
		{"zero amount", MovementRequest{AccountID: cash.ID, Amount: amount("0"), Description: "x"}, KindInvalidAmount},
		{"negative amount", MovementRequest{AccountID: cash.ID, Amount: amount("-5"), Description: "x"}, KindInvalidAmount},
		{"fractional cents", MovementRequest{AccountID: cash.ID, Amount: amount("1.005"), Description: "x"}, KindInvalidAmount},
		{"unknown account", MovementRequest{AccountID: uuid.New(), Amount: amount("1"), Description: "x"}, KindNotFound},
		{"inactive account", MovementRequest{AccountID: closed.ID, Amount: amount("1"), Description: "x"}, KindInactiveAccount},
		{"missing description", MovementRequest{AccountID: cash.ID, Amount: amount("1")}, KindInvalidInput},
	}
	for _, tt := range tests {
		t.Run("deposit "+tt.name, func(t *testing.T) {
			_, err := f.svc.Deposit(context.Background(), tt.req)
			assertKind(t, tt.kind, err)
		})
		t.Run("withdraw "+tt.name, func(t *testing.T) {
			_, err := f.svc.Withdraw(context.Background(), tt.req)
			assertKind(t, tt.kind, err)
		})
	}

	assertAmount(t, "100.00", f.balance(t, cash.ID))
	assertAmount(t, "10.00", f.balance(t, closed.ID))
}

func TestInactiveCheckedBeforeAmount(t *testing.T) {
	f := newFixture(t, Options{})
	closed := f.createAccount(t, "Closed", "0")
	inactive := false
	_, err := f.svc.UpdateAccount(context.Background(), closed.ID, UpdateAccountRequest{IsActive: &inactive})
	require.NoError(t, err)

	_, err = f.svc.Deposit(context.Background(), MovementRequest{AccountID: closed.ID, Amount: amount("0"), Description: "x"})
	assertKind(t, KindInactiveAccount, err)
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	f := newFixture(t, Options{})
	cash := f.createAccount(t, "Cash", "100")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Withdraw(context.Background(), MovementRequest{
				AccountID:   cash.ID,
				Amount:      amount("10"),
				Description: "parallel",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case KindOf(err) == KindInsufficientFunds:
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 10, rejected)
	assertAmount(t, "0.00", f.balance(t, cash.ID))
	f.assertConsistent(t, cash.ID)
}

func TestBalanceConsistencyAcrossOperations(t *testing.T) {
	f := newFixture(t, Options{})
	cash := f.createAccount(t, "Cash", "10")
	bank := f.createAccount(t, "Bank", "0")

	f.deposit(t, cash.ID, "120.10")
	f.withdraw(t, cash.ID, "0.10")
	f.deposit(t, bank.ID, "33.33")
	transfer, err := f.svc.Transfer(context.Background(), TransferRequest{FromAccountID: cash.ID, ToAccountID: bank.ID, Amount: amount("65")})
	require.NoError(t, err)
	dep := f.deposit(t, cash.ID, "1.01")
	_, err = f.svc.DeleteTransaction(context.Background(), dep.Transaction.ID)
	require.NoError(t, err)
	_, err = f.svc.DeleteTransaction(context.Background(), transfer.Incoming.ID)
	require.NoError(t, err)

	assertAmount(t, "130.00", f.balance(t, cash.ID))
	assertAmount(t, "33.33", f.balance(t, bank.ID))
	f.assertConsistent(t, cash.ID)
	f.assertConsistent(t, bank.ID)
}

func TestListTransactionsFiltersAndPaging(t *testing.T) {
	f := newFixture(t, Options{})
	cash := f.createAccount(t, "Cash", "0")
	bank := f.createAccount(t, "Bank", "0")

	record := func(kind models.TransactionKind, accountID uuid.UUID, value, date, category, ref string) {
		req := MovementRequest{
			AccountID:   accountID,
			Amount:      amount(value),
			OccurredOn:  day(date),
			Description: "entry " + date,
			Category:    category,
			ExternalRef: ref,
		}
		var err error
		if kind == models.TransactionKindDeposit {
			_, err = f.svc.Deposit(context.Background(), req)
		} else {
			_, err = f.svc.Withdraw(context.Background(), req)
		}
		require.NoError(t, err)
	}
	record(models.TransactionKindDeposit, cash.ID, "100", "2024-01-01", "sales", "INV-1")
	record(models.TransactionKindDeposit, cash.ID, "50", "2024-01-02", "sales", "INV-2")
	record(models.TransactionKindWithdrawal, cash.ID, "20", "2024-01-03", "rent", "")
	record(models.TransactionKindDeposit, cash.ID, "10", "2024-01-04", "sales", "")
	record(models.TransactionKindWithdrawal, cash.ID, "5", "2024-01-05", "fees", "")
	record(models.TransactionKindDeposit, bank.ID, "70", "2024-01-03", "sales", "INV-1")

	page, err := f.svc.ListTransactions(context.Background(), TransactionFilter{AccountID: &cash.ID, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	require.Len(t, page.Items, 2)
	assert.True(t, day("2024-01-05").Equal(page.Items[0].OccurredOn), "newest first")
	assert.True(t, day("2024-01-04").Equal(page.Items[1].OccurredOn))

	last, err := f.svc.ListTransactions(context.Background(), TransactionFilter{AccountID: &cash.ID, PageSize: 2, Page: 3})
	require.NoError(t, err)
	require.Len(t, last.Items, 1)
	assert.True(t, day("2024-01-01").Equal(last.Items[0].OccurredOn))

	withdrawals, err := f.svc.ListTransactions(context.Background(), TransactionFilter{Kind: models.TransactionKindWithdrawal})
	require.NoError(t, err)
	assert.Equal(t, int64(2), withdrawals.Total)

	sales, err := f.svc.ListTransactions(context.Background(), TransactionFilter{Category: "sales"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), sales.Total)

	byRef, err := f.svc.ListTransactions(context.Background(), TransactionFilter{ExternalRef: "INV-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), byRef.Total)

	from, to := day("2024-01-02"), day("2024-01-04")
	ranged, err := f.svc.ListTransactions(context.Background(), TransactionFilter{AccountID: &cash.ID, From: &from, To: &to})
	require.NoError(t, err)
	assert.Equal(t, int64(3), ranged.Total)
	assert.Equal(t, defaultPageSize, ranged.PageSize)
	assert.Equal(t, 1, ranged.Page)

	huge, err := f.svc.ListTransactions(context.Background(), TransactionFilter{PageSize: 10000})
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, huge.PageSize)
	assert.Len(t, huge.Items, 6)
}

func TestListTransactionsRejectsBadFilters(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.svc.ListTransactions(context.Background(), TransactionFilter{Kind: "refund"})
	assertKind(t, KindInvalidInput, err)

	from, to := day("2024-02-01"), day("2024-01-01")
	_, err = f.svc.ListTransactions(context.Background(), TransactionFilter{From: &from, To: &to})
	assertKind(t, KindInvalidInput, err)
}

func TestGetTransactionNotFound(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.svc.GetTransaction(context.Background(), uuid.New())
	assertKind(t, KindNotFound, err)
}

func TestNotificationsRespectThreshold(t *testing.T) {
	f := newFixture(t, Options{NotifyThreshold: amount("100")})
	cash := f.createAccount(t, "Cash", "0")

	f.deposit(t, cash.ID, "99.99")
	f.deposit(t, cash.ID, "100")
	f.withdraw(t, cash.ID, "150")

	sent := f.notifier.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "deposit", sent[0].Action)
	assertAmount(t, "100.00", sent[0].Amount)
	assertAmount(t, "199.99", sent[0].BalanceAfter)
	assert.Equal(t, "withdrawal", sent[1].Action)
	assert.Equal(t, "Cash", sent[1].AccountName)
}

func TestNotificationFailureDoesNotFailOperation(t *testing.T) {
	db := newTestDB(t)
	notifier := &stubNotifier{err: errors.New("smtp down")}
	svc := NewBankService(database.NewUnitOfWork(db), notifier, zap.NewNop(), Options{})

	account, err := svc.CreateAccount(context.Background(), CreateAccountRequest{Name: uniqueName(), Category: models.AccountCategoryCash})
	require.NoError(t, err)
	result, err := svc.Deposit(context.Background(), MovementRequest{AccountID: account.ID, Amount: amount("10"), Description: "x"})
	require.NoError(t, err)
	assertAmount(t, "10.00", result.NewBalance)
	assert.Len(t, notifier.sent(), 1)
}
