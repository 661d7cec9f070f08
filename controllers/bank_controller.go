package controllers

import (
	"context"
	"net/http"
	"strconv"

	"bankledger/middleware"
	"bankledger/services"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BankController обрабатывает запросы реестра счетов и операций по счету
type BankController struct {
	bankService *services.BankService
	reconciler  *services.ReconciliationService
	logger      *zap.Logger
}

// MovementRequest - тело запроса на пополнение или списание
type MovementRequest struct {
	Amount           decimal.Decimal `json:"amount"`
	Date             string          `json:"date"`
	Description      string          `json:"description"`
	Category         string          `json:"category"`
	ExternalRef      string          `json:"external_ref"`
	LinkedPaymentRef string          `json:"linked_payment_ref"`
}

// NewBankController создает новый экземпляр BankController
func NewBankController(bankService *services.BankService, reconciler *services.ReconciliationService, logger *zap.Logger) *BankController {
	return &BankController{
		bankService: bankService,
		reconciler:  reconciler,
		logger:      logger.Named("http"),
	}
}

// createdBy возвращает email оператора из контекста запроса
func createdBy(r *http.Request) string {
	_, email, err := middleware.GetUserFromContext(r.Context())
	if err != nil {
		return ""
	}
	return email
}

// CreateAccount обрабатывает запрос на создание счета
func (c *BankController) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req services.CreateAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.CreatedBy = createdBy(r)

	account, err := c.bankService.CreateAccount(r.Context(), req)
	if err != nil {
		writeError(w, c.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountResponse(account))
}

// GetAccounts возвращает список счетов; ?active=true оставляет только активные
func (c *BankController) GetAccounts(w http.ResponseWriter, r *http.Request) {
	activeOnly := false
	if value := r.URL.Query().Get("active"); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			writeErrorMessage(w, http.StatusBadRequest, string(services.KindInvalidInput), "invalid active flag")
			return
		}
		activeOnly = parsed
	}

	accounts, err := c.bankService.ListAccounts(r.Context(), activeOnly)
	if err != nil {
		writeError(w, c.logger, err)
		return
	}
	resp := make([]AccountResponse, 0, len(accounts))
	for i := range accounts {
		resp = append(resp, toAccountResponse(&accounts[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetAccount возвращает счет с последними проводками и агрегатами
func (c *BankController) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	details, err := c.bankService.GetAccountDetails(r.Context(), id)
	if err != nil {
		writeError(w, c.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, AccountDetailsResponse{
		Account:            toAccountResponse(details.Account),
		RecentTransactions: toTransactionResponses(details.RecentTransactions),
		Summary:            toBalanceResponse(details.Snapshot),
	})
}

// UpdateAccount обновляет метаданные счета
func (c *BankController) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req services.UpdateAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	account, err := c.bankService.UpdateAccount(r.Context(), id, req)
	if err != nil {
		writeError(w, c.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

// GetBalance возвращает снимок баланса счета
func (c *BankController) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	snapshot, err := c.bankService.GetBalance(r.Context(), id)
	if err != nil {
		writeError(w, c.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceResponse(snapshot))
}

// GetStatement отдает XML-выписку за период ?from=&to=
func (c *BankController) GetStatement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	from, ok := optionalDate(w, "from", r.URL.Query().Get("from"), false)
	if !ok {
		return
	}
	to, ok := optionalDate(w, "to", r.URL.Query().Get("to"), true)
	if !ok {
		return
	}

	doc, err := c.bankService.Statement(r.Context(), services.StatementRequest{AccountID: id, From: from, To: to})
	if err != nil {
		writeError(w, c.logger, err)
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := doc.WriteTo(w); err != nil {
		c.logger.Warn("failed to write statement", zap.Error(err))
	}
}

// GetReconciliation сверяет баланс счета с его проводками
func (c *BankController) GetReconciliation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	result, err := c.reconciler.VerifyAccount(r.Context(), id)
	if err != nil {
		writeError(w, c.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toReconciliationResponse(result))
}

// Deposit обрабатывает запрос на пополнение счета
func (c *BankController) Deposit(w http.ResponseWriter, r *http.Request) {
	c.movement(w, r, c.bankService.Deposit)
}

// Withdraw обрабатывает запрос на списание средств со счета
func (c *BankController) Withdraw(w http.ResponseWriter, r *http.Request) {
	c.movement(w, r, c.bankService.Withdraw)
}

type movementFunc func(ctx context.Context, req services.MovementRequest) (*services.MovementResult, error)

func (c *BankController) movement(w http.ResponseWriter, r *http.Request, apply movementFunc) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body MovementRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	occurredOn, ok := optionalDate(w, "date", body.Date, false)
	if !ok {
		return
	}

	req := services.MovementRequest{
		AccountID:   id,
		Amount:      body.Amount,
		Description: body.Description,
		Category:    body.Category,
		ExternalRef: body.ExternalRef,
		PaymentRef:  body.LinkedPaymentRef,
		CreatedBy:   createdBy(r),
	}
	if occurredOn != nil {
		req.OccurredOn = *occurredOn
	}

	result, err := apply(r.Context(), req)
	if err != nil {
		writeError(w, c.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, MovementResponse{
		Transaction: toTransactionResponse(result.Transaction),
		NewBalance:  result.NewBalance.StringFixed(2),
	})
}
