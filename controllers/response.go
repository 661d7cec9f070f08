package controllers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"bankledger/services"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeErrorMessage(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Kind: kind, Message: message}})
}

// statusFor сопоставляет класс ошибки леджера с HTTP-статусом
func statusFor(kind services.ErrorKind) int {
	switch kind {
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindInvalidAmount, services.KindInvalidInput, services.KindSameAccount:
		return http.StatusBadRequest
	case services.KindInactiveAccount, services.KindInsufficientFunds, services.KindDuplicateName, services.KindNegativeBalance:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError отвечает ошибкой сервиса. Инфраструктурные ошибки логируются и скрываются от клиента.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	kind := services.KindOf(err)
	if kind == "" {
		logger.Error("request failed", zap.Error(err))
		writeErrorMessage(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}
	writeErrorMessage(w, statusFor(kind), string(kind), err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, string(services.KindInvalidInput), "invalid request body")
		return false
	}
	return true
}

// pathID разбирает UUID из переменной маршрута
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, string(services.KindInvalidInput), "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// parseDate принимает дату в формате 2006-01-02 или RFC3339
func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// optionalDate разбирает необязательную дату. false означает, что ответ с ошибкой уже отправлен.
// Для верхней границы дата без времени означает конец дня.
func optionalDate(w http.ResponseWriter, name, value string, upper bool) (*time.Time, bool) {
	if value == "" {
		return nil, true
	}
	t, err := parseDate(value)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, string(services.KindInvalidInput), "invalid "+name+": use YYYY-MM-DD or RFC3339")
		return nil, false
	}
	if upper && len(strings.TrimSpace(value)) == len("2006-01-02") {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, true
}
