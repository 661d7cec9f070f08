package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bankledger/config"
	"bankledger/database"
	"bankledger/middleware"
	"bankledger/services"

	"github.com/bxcodec/faker/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const operatorEmail = "operator@example.com"

type testServer struct {
	router *mux.Router
	cfg    *config.Config
	token  string
}

func newTestServer(t *testing.T, allowSignUp bool) *testServer {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))

	cfg := &config.Config{}
	cfg.JWT.SecretKey = "test-secret"
	cfg.JWT.ExpiresIn = 1
	cfg.Auth.AllowSignUp = allowSignUp
	cfg.RateLimit.Requests = 1000
	cfg.RateLimit.Window = time.Minute
	cfg.CORS.AllowedOrigins = []string{"*"}

	log := zap.NewNop()
	uow := database.NewUnitOfWork(db)
	bank := services.NewBankService(uow, nil, log, services.Options{})
	reconciler := services.NewReconciliationService(uow, log, 0)

	router := NewRouter(cfg, log,
		NewAuthController(services.NewUserService(db), cfg, log),
		NewBankController(bank, reconciler, log),
		NewTransactionController(bank, log),
	)
	return &testServer{router: router, cfg: cfg, token: signToken(t, cfg.JWT.SecretKey, 1, operatorEmail)}
}

func signToken(t *testing.T, secret string, userID uint, email string) string {
	t.Helper()
	claims := &middleware.Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return s.doWithToken(t, method, path, body, s.token)
}

func (s *testServer) doWithToken(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func assertErrorKind(t *testing.T, rec *httptest.ResponseRecorder, status int, kind string) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	var resp errorResponse
	decode(t, rec, &resp)
	assert.Equal(t, kind, resp.Error.Kind)
	assert.NotEmpty(t, resp.Error.Message)
}

func (s *testServer) createAccount(t *testing.T, name, initial string) AccountResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/accounts", map[string]string{
		"name":            name,
		"category":        "checking",
		"initial_balance": initial,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var account AccountResponse
	decode(t, rec, &account)
	return account
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.doWithToken(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestPreflightThroughRouter(t *testing.T) {
	s := newTestServer(t, false)

	for _, path := range []string{"/api/transfers", "/api/accounts/" + uuid.NewString() + "/deposit", "/api/auth/signIn"} {
		req := httptest.NewRequest(http.MethodOptions, path, nil)
		req.Header.Set("Origin", "https://console.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code, path)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"), path)
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost, path)
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization", path)
	}

	// обычный запрос тоже получает CORS-заголовки
	rec := s.do(t, http.MethodGet, "/api/accounts", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, false)

	assertErrorKind(t, s.doWithToken(t, http.MethodGet, "/api/accounts", nil, ""), http.StatusUnauthorized, "unauthorized")
	assertErrorKind(t, s.doWithToken(t, http.MethodGet, "/api/accounts", nil, "garbage"), http.StatusUnauthorized, "unauthorized")

	foreign := signToken(t, "another-secret", 1, operatorEmail)
	assertErrorKind(t, s.doWithToken(t, http.MethodGet, "/api/accounts", nil, foreign), http.StatusUnauthorized, "unauthorized")
}

func TestAccountMovements(t *testing.T) {
	s := newTestServer(t, false)
	account := s.createAccount(t, "Cash", "100")
	assert.Equal(t, "100.00", account.CurrentBalance)
	assert.Equal(t, "USD", account.Currency)

	rec := s.do(t, http.MethodPost, "/api/accounts/"+account.ID+"/deposit", map[string]string{
		"amount":      "50",
		"description": faker.Sentence(),
		"date":        "2024-03-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var movement MovementResponse
	decode(t, rec, &movement)
	assert.Equal(t, "150.00", movement.NewBalance)
	assert.Equal(t, "deposit", movement.Transaction.Kind)
	assert.Equal(t, "150.00", movement.Transaction.BalanceAfter)
	require.NotNil(t, movement.Transaction.CreatedBy)
	assert.Equal(t, operatorEmail, *movement.Transaction.CreatedBy)

	assertErrorKind(t, s.do(t, http.MethodPost, "/api/accounts/"+account.ID+"/withdraw", map[string]string{
		"amount": "500", "description": "rent",
	}), http.StatusConflict, string(services.KindInsufficientFunds))
	assertErrorKind(t, s.do(t, http.MethodPost, "/api/accounts/"+account.ID+"/withdraw", map[string]string{
		"amount": "0.001", "description": "rent",
	}), http.StatusBadRequest, string(services.KindInvalidAmount))
	assertErrorKind(t, s.do(t, http.MethodPost, "/api/accounts/"+account.ID+"/deposit", map[string]string{
		"amount": "5", "description": "bad date", "date": "01/03/2024",
	}), http.StatusBadRequest, string(services.KindInvalidInput))

	rec = s.do(t, http.MethodGet, "/api/accounts/"+account.ID+"/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var balance BalanceResponse
	decode(t, rec, &balance)
	assert.Equal(t, "150.00", balance.Balance)
	assert.Equal(t, int64(2), balance.TransactionCount)

	rec = s.do(t, http.MethodGet, "/api/accounts/"+account.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var details AccountDetailsResponse
	decode(t, rec, &details)
	assert.Len(t, details.RecentTransactions, 2)

	assertErrorKind(t, s.do(t, http.MethodGet, "/api/accounts/"+uuid.NewString(), nil), http.StatusNotFound, string(services.KindNotFound))
	assertErrorKind(t, s.do(t, http.MethodGet, "/api/accounts/not-a-uuid", nil), http.StatusBadRequest, string(services.KindInvalidInput))
}

func TestCreateAccountConflicts(t *testing.T) {
	s := newTestServer(t, false)
	s.createAccount(t, "Cash", "0")

	assertErrorKind(t, s.do(t, http.MethodPost, "/api/accounts", map[string]string{
		"name": "cash", "category": "checking",
	}), http.StatusConflict, string(services.KindDuplicateName))
	assertErrorKind(t, s.do(t, http.MethodPost, "/api/accounts", map[string]string{
		"name": "Piggy", "category": "piggy",
	}), http.StatusBadRequest, string(services.KindInvalidInput))

	rec := s.do(t, http.MethodGet, "/api/accounts?active=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var accounts []AccountResponse
	decode(t, rec, &accounts)
	assert.Len(t, accounts, 1)

	assertErrorKind(t, s.do(t, http.MethodGet, "/api/accounts?active=maybe", nil), http.StatusBadRequest, string(services.KindInvalidInput))
}

func TestTransferAndReversal(t *testing.T) {
	s := newTestServer(t, false)
	cash := s.createAccount(t, "Cash", "100")
	savings := s.createAccount(t, "Savings", "0")

	assertErrorKind(t, s.do(t, http.MethodPost, "/api/transfers", map[string]string{
		"from_account_id": cash.ID, "to_account_id": cash.ID, "amount": "10",
	}), http.StatusBadRequest, string(services.KindSameAccount))

	rec := s.do(t, http.MethodPost, "/api/transfers", map[string]string{
		"from_account_id": cash.ID, "to_account_id": savings.ID, "amount": "30",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var transfer TransferResponse
	decode(t, rec, &transfer)
	assert.Equal(t, "70.00", transfer.FromBalance)
	assert.Equal(t, "30.00", transfer.ToBalance)
	require.NotNil(t, transfer.Outgoing.LinkedTransactionID)
	assert.Equal(t, transfer.Incoming.ID, *transfer.Outgoing.LinkedTransactionID)

	rec = s.do(t, http.MethodGet, "/api/transactions?kind=transfer_in&account_id="+savings.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page TransactionPageResponse
	decode(t, rec, &page)
	require.Len(t, page.Items, 1)
	assert.Equal(t, transfer.Incoming.ID, page.Items[0].ID)

	assertErrorKind(t, s.do(t, http.MethodGet, "/api/transactions?page=0", nil), http.StatusBadRequest, string(services.KindInvalidInput))

	rec = s.do(t, http.MethodDelete, "/api/transactions/"+transfer.Incoming.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var reversal ReversalResponse
	decode(t, rec, &reversal)
	require.Len(t, reversal.Reversed, 2)

	rec = s.do(t, http.MethodGet, "/api/accounts/"+cash.ID+"/reconciliation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var reconciliation ReconciliationResponse
	decode(t, rec, &reconciliation)
	assert.True(t, reconciliation.Consistent)
	assert.Equal(t, "100.00", reconciliation.Balance)

	assertErrorKind(t, s.do(t, http.MethodDelete, "/api/transactions/"+transfer.Outgoing.ID, nil), http.StatusNotFound, string(services.KindNotFound))
	assertErrorKind(t, s.do(t, http.MethodGet, "/api/transactions/"+transfer.Outgoing.ID, nil), http.StatusNotFound, string(services.KindNotFound))
}

func TestReversalRejectedWhenBalanceWouldGoNegative(t *testing.T) {
	s := newTestServer(t, false)
	cash := s.createAccount(t, "Cash", "0")

	rec := s.do(t, http.MethodPost, "/api/accounts/"+cash.ID+"/deposit", map[string]string{"amount": "100", "description": "salary"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var deposit MovementResponse
	decode(t, rec, &deposit)

	rec = s.do(t, http.MethodPost, "/api/accounts/"+cash.ID+"/withdraw", map[string]string{"amount": "80", "description": "rent"})
	require.Equal(t, http.StatusCreated, rec.Code)

	assertErrorKind(t, s.do(t, http.MethodDelete, "/api/transactions/"+deposit.Transaction.ID, nil), http.StatusConflict, string(services.KindNegativeBalance))
}

func TestStatementEndpoint(t *testing.T) {
	s := newTestServer(t, false)
	cash := s.createAccount(t, "Cash", "25")

	rec := s.do(t, http.MethodGet, "/api/accounts/"+cash.ID+"/statement?from=2000-01-01&to=2099-12-31", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "application/xml"))
	assert.Contains(t, rec.Body.String(), "<Statement")
	assert.Contains(t, rec.Body.String(), "<ClosingBalance>25.00</ClosingBalance>")

	assertErrorKind(t, s.do(t, http.MethodGet, "/api/accounts/"+cash.ID+"/statement?from=yesterday", nil), http.StatusBadRequest, string(services.KindInvalidInput))
}

func TestSignUpAndSignIn(t *testing.T) {
	s := newTestServer(t, true)
	email := faker.Email()
	password := "Secr3t!pass"

	rec := s.doWithToken(t, http.MethodPost, "/api/auth/signUp", map[string]string{
		"firstName": "Dana", "lastName": "Reyes", "email": email, "password": password,
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var signUp AuthResponse
	decode(t, rec, &signUp)
	assert.NotEmpty(t, signUp.Token.Token)

	// выданный токен открывает защищенные маршруты
	assert.Equal(t, http.StatusOK, s.doWithToken(t, http.MethodGet, "/api/accounts", nil, signUp.Token.Token).Code)

	rec = s.doWithToken(t, http.MethodPost, "/api/auth/signIn", map[string]string{"email": email, "password": password}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var signIn AuthResponse
	decode(t, rec, &signIn)
	assert.Equal(t, signUp.User.ID, signIn.User.ID)

	assertErrorKind(t, s.doWithToken(t, http.MethodPost, "/api/auth/signIn", map[string]string{
		"email": email, "password": "Wr0ng!pass",
	}, ""), http.StatusUnauthorized, "unauthorized")
	assertErrorKind(t, s.doWithToken(t, http.MethodPost, "/api/auth/signUp", map[string]string{
		"firstName": "Dana", "lastName": "Reyes", "email": faker.Email(), "password": "weakpassword",
	}, ""), http.StatusBadRequest, string(services.KindInvalidInput))
}

func TestSignUpDisabled(t *testing.T) {
	s := newTestServer(t, false)

	assertErrorKind(t, s.doWithToken(t, http.MethodPost, "/api/auth/signUp", map[string]string{
		"firstName": "Dana", "lastName": "Reyes", "email": faker.Email(), "password": "Secr3t!pass",
	}, ""), http.StatusForbidden, "forbidden")
}

func TestStatusFor(t *testing.T) {
	cases := map[services.ErrorKind]int{
		services.KindNotFound:          http.StatusNotFound,
		services.KindInvalidAmount:     http.StatusBadRequest,
		services.KindInvalidInput:      http.StatusBadRequest,
		services.KindSameAccount:       http.StatusBadRequest,
		services.KindInactiveAccount:   http.StatusConflict,
		services.KindInsufficientFunds: http.StatusConflict,
		services.KindDuplicateName:     http.StatusConflict,
		services.KindNegativeBalance:   http.StatusConflict,
		"":                             http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, statusFor(kind), string(kind))
	}
}

func TestOptionalDateUpperBound(t *testing.T) {
	rec := httptest.NewRecorder()

	to, ok := optionalDate(rec, "to", "2024-01-31", true)
	require.True(t, ok)
	assert.True(t, time.Date(2024, 1, 31, 23, 59, 59, 999999999, time.UTC).Equal(*to), to.String())

	exact, ok := optionalDate(rec, "to", "2024-01-31T10:00:00+02:00", true)
	require.True(t, ok)
	assert.True(t, time.Date(2024, 1, 31, 8, 0, 0, 0, time.UTC).Equal(*exact), exact.String())

	empty, ok := optionalDate(rec, "to", "", true)
	assert.True(t, ok)
	assert.Nil(t, empty)
	assert.Equal(t, http.StatusOK, rec.Code)
}
