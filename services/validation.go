package services

import (
	"bankledger/models"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// NewValidator создает валидатор с правилами леджера
func NewValidator() *validator.Validate {
	validate := validator.New()

	validate.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
		return currencyPattern.MatchString(fl.Field().String())
	})
	validate.RegisterValidation("account_category", func(fl validator.FieldLevel) bool {
		return models.AccountCategory(fl.Field().String()).Valid()
	})
	validate.RegisterValidation("transaction_kind", func(fl validator.FieldLevel) bool {
		return models.TransactionKind(fl.Field().String()).Valid()
	})

	return validate
}

// validateStruct валидирует DTO и переводит ошибки тегов в читаемое сообщение
func validateStruct(validate *validator.Validate, dto interface{}) error {
	err := validate.Struct(dto)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return errors.Wrap(err, "failed to validate request")
	}

	var errorMessages []string
	for _, e := range validationErrors {
		switch e.Tag() {
		case "required":
			errorMessages = append(errorMessages, "field "+e.Field()+" is required")
		case "min":
			errorMessages = append(errorMessages, "field "+e.Field()+" must be at least "+e.Param()+" characters")
		case "max":
			errorMessages = append(errorMessages, "field "+e.Field()+" must be at most "+e.Param()+" characters")
		case "email":
			errorMessages = append(errorMessages, "field "+e.Field()+" must be a valid email")
		case "currency":
			errorMessages = append(errorMessages, "field "+e.Field()+" must be a 3-letter ISO currency code")
		case "account_category":
			errorMessages = append(errorMessages, "field "+e.Field()+" must be one of: checking, savings, credit_card, cash, loan, other")
		case "transaction_kind":
			errorMessages = append(errorMessages, "field "+e.Field()+" must be one of: deposit, withdrawal, transfer_in, transfer_out")
		default:
			errorMessages = append(errorMessages, "field "+e.Field()+" is invalid")
		}
	}
	return newError(KindInvalidInput, "%s", strings.Join(errorMessages, "; "))
}

// checkAmount проверяет, что сумма положительна и содержит не более двух знаков после запятой
func checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return newError(KindInvalidAmount, "amount must be greater than zero, got %s", amount.String())
	}
	if !amount.Equal(amount.Round(2)) {
		return newError(KindInvalidAmount, "amount %s has more than two decimal places", amount.String())
	}
	return nil
}

// optional превращает пустую строку в nil
func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
