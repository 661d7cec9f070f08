package controllers

import (
	"time"

	"bankledger/models"
	"bankledger/services"
)

// Суммы в ответах передаются строками с двумя знаками после запятой

type AccountResponse struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Category            string    `json:"category"`
	Currency            string    `json:"currency"`
	CurrentBalance      string    `json:"current_balance"`
	IsActive            bool      `json:"is_active"`
	BankName            string    `json:"bank_name,omitempty"`
	AccountNumberMasked string    `json:"account_number_masked,omitempty"`
	Notes               string    `json:"notes,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type TransactionResponse struct {
	ID                  string    `json:"id"`
	AccountID           string    `json:"account_id"`
	Kind                string    `json:"kind"`
	Amount              string    `json:"amount"`
	Date                time.Time `json:"date"`
	Description         string    `json:"description"`
	Category            string    `json:"category,omitempty"`
	BalanceAfter        string    `json:"balance_after"`
	ExternalRef         *string   `json:"external_ref,omitempty"`
	LinkedPaymentRef    *string   `json:"linked_payment_ref,omitempty"`
	CreatedBy           *string   `json:"created_by,omitempty"`
	LinkedTransactionID *string   `json:"linked_transaction_id,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

type MovementResponse struct {
	Transaction TransactionResponse `json:"transaction"`
	NewBalance  string              `json:"new_balance"`
}

type TransferResponse struct {
	Outgoing    TransactionResponse `json:"outgoing"`
	Incoming    TransactionResponse `json:"incoming"`
	FromBalance string              `json:"from_balance"`
	ToBalance   string              `json:"to_balance"`
}

type ReversedLegResponse struct {
	TransactionID   string `json:"transaction_id"`
	Kind            string `json:"kind"`
	AccountID       string `json:"account_id"`
	AccountName     string `json:"account_name"`
	Amount          string `json:"amount"`
	PreviousBalance string `json:"previous_balance"`
	NewBalance      string `json:"new_balance"`
}

type ReversalResponse struct {
	Reversed []ReversedLegResponse `json:"reversed"`
}

type KindTotalResponse struct {
	Count int64  `json:"count"`
	Total string `json:"total"`
}

type BalanceResponse struct {
	AccountID        string                       `json:"account_id"`
	Name             string                       `json:"name"`
	Currency         string                       `json:"currency"`
	IsActive         bool                         `json:"is_active"`
	Balance          string                       `json:"balance"`
	TotalInflow      string                       `json:"total_inflow"`
	TotalOutflow     string                       `json:"total_outflow"`
	TransactionCount int64                        `json:"transaction_count"`
	Totals           map[string]KindTotalResponse `json:"totals"`
	LastTransaction  *TransactionResponse         `json:"last_transaction,omitempty"`
}

type AccountDetailsResponse struct {
	Account            AccountResponse       `json:"account"`
	RecentTransactions []TransactionResponse `json:"recent_transactions"`
	Summary            BalanceResponse       `json:"summary"`
}

type TransactionPageResponse struct {
	Items    []TransactionResponse `json:"items"`
	Total    int64                 `json:"total"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
}

type ReconciliationResponse struct {
	AccountID        string    `json:"account_id"`
	AccountName      string    `json:"account_name"`
	Balance          string    `json:"balance"`
	LedgerTotal      string    `json:"ledger_total"`
	Difference       string    `json:"difference"`
	TransactionCount int64     `json:"transaction_count"`
	Consistent       bool      `json:"consistent"`
	CheckedAt        time.Time `json:"checked_at"`
}

func toAccountResponse(a *models.Account) AccountResponse {
	return AccountResponse{
		ID:                  a.ID.String(),
		Name:                a.Name,
		Category:            string(a.Category),
		Currency:            a.Currency,
		CurrentBalance:      a.CurrentBalance.StringFixed(2),
		IsActive:            a.IsActive,
		BankName:            a.BankName,
		AccountNumberMasked: a.AccountNumberMasked,
		Notes:               a.Notes,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
}

func toTransactionResponse(t *models.Transaction) TransactionResponse {
	resp := TransactionResponse{
		ID:               t.ID.String(),
		AccountID:        t.AccountID.String(),
		Kind:             string(t.Kind),
		Amount:           t.Amount.StringFixed(2),
		Date:             t.OccurredOn,
		Description:      t.Description,
		Category:         t.Category,
		BalanceAfter:     t.BalanceAfter.StringFixed(2),
		ExternalRef:      t.ExternalRef,
		LinkedPaymentRef: t.PaymentRef,
		CreatedBy:        t.CreatedBy,
		CreatedAt:        t.CreatedAt,
	}
	if t.LinkedTransactionID != nil {
		linked := t.LinkedTransactionID.String()
		resp.LinkedTransactionID = &linked
	}
	return resp
}

func toTransactionResponses(items []models.Transaction) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(items))
	for i := range items {
		out = append(out, toTransactionResponse(&items[i]))
	}
	return out
}

func toBalanceResponse(s *services.BalanceSnapshot) BalanceResponse {
	resp := BalanceResponse{
		AccountID:        s.AccountID.String(),
		Name:             s.Name,
		Currency:         s.Currency,
		IsActive:         s.IsActive,
		Balance:          s.Balance.StringFixed(2),
		TotalInflow:      s.TotalInflow.StringFixed(2),
		TotalOutflow:     s.TotalOutflow.StringFixed(2),
		TransactionCount: s.TransactionCount,
		Totals:           make(map[string]KindTotalResponse, len(s.Totals)),
	}
	for kind, total := range s.Totals {
		resp.Totals[string(kind)] = KindTotalResponse{Count: total.Count, Total: total.Total.StringFixed(2)}
	}
	if s.LastTransaction != nil {
		last := toTransactionResponse(s.LastTransaction)
		resp.LastTransaction = &last
	}
	return resp
}

func toReconciliationResponse(r *services.Reconciliation) ReconciliationResponse {
	return ReconciliationResponse{
		AccountID:        r.AccountID.String(),
		AccountName:      r.AccountName,
		Balance:          r.Balance.StringFixed(2),
		LedgerTotal:      r.LedgerTotal.StringFixed(2),
		Difference:       r.Difference.StringFixed(2),
		TransactionCount: r.TransactionCount,
		Consistent:       r.Consistent,
		CheckedAt:        r.CheckedAt,
	}
}

func toReversalResponse(r *services.ReversalResult) ReversalResponse {
	resp := ReversalResponse{Reversed: make([]ReversedLegResponse, 0, len(r.Legs))}
	for _, leg := range r.Legs {
		resp.Reversed = append(resp.Reversed, ReversedLegResponse{
			TransactionID:   leg.TransactionID.String(),
			Kind:            string(leg.Kind),
			AccountID:       leg.AccountID.String(),
			AccountName:     leg.AccountName,
			Amount:          leg.Amount.StringFixed(2),
			PreviousBalance: leg.PreviousBalance.StringFixed(2),
			NewBalance:      leg.NewBalance.StringFixed(2),
		})
	}
	return resp
}
