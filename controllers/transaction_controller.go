package controllers

import (
	"net/http"
	"strconv"

	"bankledger/models"
	"bankledger/services"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TransactionController обрабатывает переводы и журнал проводок
type TransactionController struct {
	bankService *services.BankService
	logger      *zap.Logger
}

// TransferRequest - тело запроса на перевод
type TransferRequest struct {
	FromAccountID string          `json:"from_account_id"`
	ToAccountID   string          `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Date          string          `json:"date"`
	Description   string          `json:"description"`
	Category      string          `json:"category"`
	ExternalRef   string          `json:"external_ref"`
}

// NewTransactionController создает новый экземпляр TransactionController
func NewTransactionController(bankService *services.BankService, logger *zap.Logger) *TransactionController {
	return &TransactionController{
		bankService: bankService,
		logger:      logger.Named("http"),
	}
}

// Transfer обрабатывает запрос на перевод средств между счетами
func (c *TransactionController) Transfer(w http.ResponseWriter, r *http.Request) {
	var body TransferRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	from, err := uuid.Parse(body.FromAccountID)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, string(services.KindInvalidInput), "invalid from_account_id")
		return
	}
	to, err := uuid.Parse(body.ToAccountID)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, string(services.KindInvalidInput), "invalid to_account_id")
		return
	}
	occurredOn, ok := optionalDate(w, "date", body.Date, false)
	if !ok {
		return
	}

	req := services.TransferRequest{
		FromAccountID: from,
		ToAccountID:   to,
		Amount:        body.Amount,
		Description:   body.Description,
		Category:      body.Category,
		ExternalRef:   body.ExternalRef,
		CreatedBy:     createdBy(r),
	}
	if occurredOn != nil {
		req.OccurredOn = *occurredOn
	}

	result, err := c.bankService.Transfer(r.Context(), req)
	if err != nil {
		writeError(w, c.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, TransferResponse{
		Outgoing:    toTransactionResponse(result.Outgoing),
		Incoming:    toTransactionResponse(result.Incoming),
		FromBalance: result.FromBalance.StringFixed(2),
		ToBalance:   result.ToBalance.StringFixed(2),
	})
}

// ListTransactions возвращает страницу проводок.
// Параметры: account_id, kind, category, external_ref, from, to, page, page_size.
func (c *TransactionController) ListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := services.TransactionFilter{
		Kind:        models.TransactionKind(query.Get("kind")),
		Category:    query.Get("category"),
		ExternalRef: query.Get("external_ref"),
	}

	if value := query.Get("account_id"); value != "" {
		id, err := uuid.Parse(value)
		if err != nil {
			writeErrorMessage(w, http.StatusBadRequest, string(services.KindInvalidInput), "invalid account_id")
			return
		}
		filter.AccountID = &id
	}

	var ok bool
	if filter.From, ok = optionalDate(w, "from", query.Get("from"), false); !ok {
		return
	}
	if filter.To, ok = optionalDate(w, "to", query.Get("to"), true); !ok {
		return
	}

	for name, dst := range map[string]*int{"page": &filter.Page, "page_size": &filter.PageSize} {
		value := query.Get(name)
		if value == "" {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			writeErrorMessage(w, http.StatusBadRequest, string(services.KindInvalidInput), "invalid "+name)
			return
		}
		*dst = n
	}

	page, err := c.bankService.ListTransactions(r.Context(), filter)
	if err != nil {
		writeError(w, c.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, TransactionPageResponse{
		Items:    toTransactionResponses(page.Items),
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
	})
}

// GetTransaction возвращает проводку по ID
func (c *TransactionController) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	transaction, err := c.bankService.GetTransaction(r.Context(), id)
	if err != nil {
		writeError(w, c.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(transaction))
}

// DeleteTransaction отменяет проводку; для перевода удаляются обе ноги
func (c *TransactionController) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	result, err := c.bankService.DeleteTransaction(r.Context(), id)
	if err != nil {
		writeError(w, c.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toReversalResponse(result))
}
