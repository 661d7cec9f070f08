package services

import (
	"bankledger/models"
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ErrInvalidCredentials возвращается при неверном email или пароле
var ErrInvalidCredentials = errors.New("invalid email or password")

type UserService struct {
	db        *gorm.DB
	validator *validator.Validate
}

type CreateUserRequest struct {
	FirstName string `json:"firstName" validate:"required,min=2,max=50"`
	LastName  string `json:"lastName" validate:"required,min=2,max=50"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
}

type UserResponse struct {
	ID        uint   `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db, validator: NewValidator()}
}

// ToResponse убирает хеш пароля из ответа
func ToResponse(user *models.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
	}
}

// CreateUser создает нового оператора
func (h *UserService) CreateUser(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if err := validateStruct(h.validator, req); err != nil {
		return nil, err
	}

	db := h.db.WithContext(ctx)

	// Проверяем, существует ли пользователь с таким email
	var count int64
	if err := db.Model(&models.User{}).Where("LOWER(email) = ?", req.Email).Count(&count).Error; err != nil {
		return nil, errors.Wrap(err, "failed to check user email")
	}
	if count > 0 {
		return nil, newError(KindDuplicateName, "user with email %s already exists", req.Email)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash password")
	}

	user := &models.User{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  string(hashedPassword),
	}
	if err := db.Create(user).Error; err != nil {
		return nil, errors.Wrap(err, "failed to create user")
	}

	return user, nil
}

// Authenticate проверяет email и пароль оператора
func (h *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := h.FindByEmail(ctx, email)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// FindByID ищет пользователя по ID
func (h *UserService) FindByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := h.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(KindNotFound, "user %d not found", id)
		}
		return nil, errors.Wrap(err, "failed to load user")
	}
	return &user, nil
}

// FindByEmail ищет пользователя по email (игнорируя регистр и пробелы)
func (h *UserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := h.db.WithContext(ctx).Where("LOWER(TRIM(email)) = LOWER(TRIM(?))", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(KindNotFound, "user %s not found", email)
		}
		return nil, errors.Wrap(err, "failed to load user")
	}
	return &user, nil
}
