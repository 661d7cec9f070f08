package controllers

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"bankledger/config"
	"bankledger/middleware"
	"bankledger/services"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	hasNumber  = regexp.MustCompile(`[0-9]`)
	hasUpper   = regexp.MustCompile(`[A-Z]`)
	hasLower   = regexp.MustCompile(`[a-z]`)
	hasSpecial = regexp.MustCompile(`[!@#$%^&*]`)
)

type AuthController struct {
	userService *services.UserService
	validate    *validator.Validate
	config      *config.Config
	logger      *zap.Logger
}

type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type SignUpRequest struct {
	FirstName string `json:"firstName" validate:"required,min=2,max=50,alpha"`
	LastName  string `json:"lastName" validate:"required,min=2,max=50,alpha"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,password"`
}

type Token struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	UserID    uint      `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type AuthResponse struct {
	Token Token                 `json:"token"`
	User  services.UserResponse `json:"user"`
}

func NewAuthController(userService *services.UserService, cfg *config.Config, logger *zap.Logger) *AuthController {
	validate := validator.New()

	// Пароль должен содержать цифру, заглавную и строчную буквы и спецсимвол
	validate.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		password := fl.Field().String()
		return hasNumber.MatchString(password) &&
			hasUpper.MatchString(password) &&
			hasLower.MatchString(password) &&
			hasSpecial.MatchString(password)
	})

	return &AuthController{
		userService: userService,
		validate:    validate,
		config:      cfg,
		logger:      logger.Named("auth"),
	}
}

// validationMessage переводит ошибки тегов в читаемое сообщение
func validationMessage(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return "invalid request"
	}
	var errorMessages []string
	for _, e := range validationErrors {
		switch e.Tag() {
		case "required":
			errorMessages = append(errorMessages, "field "+e.Field()+" is required")
		case "email":
			errorMessages = append(errorMessages, "field "+e.Field()+" must be a valid email")
		case "password":
			errorMessages = append(errorMessages, "field "+e.Field()+" must contain a digit, an upper and a lower case letter and one of !@#$%^&*")
		default:
			errorMessages = append(errorMessages, "field "+e.Field()+" is invalid")
		}
	}
	return strings.Join(errorMessages, "; ")
}

// SignIn обрабатывает вход оператора
func (c *AuthController) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := c.validate.Struct(req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, string(services.KindInvalidInput), validationMessage(err))
		return
	}

	user, err := c.userService.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			c.logger.Warn("sign in rejected", zap.String("email", req.Email))
			writeErrorMessage(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
			return
		}
		writeError(w, c.logger, err)
		return
	}

	token, err := c.generateToken(user.ID, user.Email)
	if err != nil {
		writeError(w, c.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{Token: *token, User: services.ToResponse(user)})
}

// SignUp регистрирует оператора, если регистрация разрешена конфигурацией
func (c *AuthController) SignUp(w http.ResponseWriter, r *http.Request) {
	if !c.config.Auth.AllowSignUp {
		writeErrorMessage(w, http.StatusForbidden, "forbidden", "sign up is disabled")
		return
	}

	var req SignUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := c.validate.Struct(req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, string(services.KindInvalidInput), validationMessage(err))
		return
	}

	user, err := c.userService.CreateUser(r.Context(), services.CreateUserRequest{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		writeError(w, c.logger, err)
		return
	}

	token, err := c.generateToken(user.ID, user.Email)
	if err != nil {
		writeError(w, c.logger, err)
		return
	}
	c.logger.Info("operator registered", zap.Uint("user_id", user.ID), zap.String("email", user.Email))
	writeJSON(w, http.StatusCreated, AuthResponse{Token: *token, User: services.ToResponse(user)})
}

// generateToken создает JWT токен
func (c *AuthController) generateToken(userID uint, email string) (*Token, error) {
	now := time.Now()
	expirationTime := now.Add(time.Duration(c.config.JWT.ExpiresIn) * time.Hour)
	claims := &middleware.Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(c.config.JWT.SecretKey))
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign token")
	}

	return &Token{
		Token:     tokenString,
		Email:     email,
		UserID:    userID,
		ExpiresAt: expirationTime,
	}, nil
}
