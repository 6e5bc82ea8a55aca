package services

import (
	"context"
	cryptorand "crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ficore/backend/internal/config"
	"github.com/ficore/backend/internal/middleware"
	"github.com/ficore/backend/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"
)

const defaultRole = "user"

type AuthService struct {
	db              *sql.DB
	redis           *redis.Client
	validator       *validator.Validate
	logger          *zap.Logger
	jwt             config.JWTConfig
	argon2          config.Argon2Config
	startingBalance int64
	now             func() time.Time
}

// LoginRequest represents the login request payload
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" example:"user@example.com"` // User email
	Password string `json:"password" validate:"required,min=6" example:"password123"`   // User password
}

// RegisterRequest represents the registration request payload
type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email" example:"user@example.com"`
	Password    string `json:"password" validate:"required,min=6" example:"password123"`
	DisplayName string `json:"display_name" validate:"required,max=50" example:"Ada"`
}

// AuthResponse represents the authentication response
type AuthResponse struct {
	Token string      `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."` // JWT token
	User  models.User `json:"user"`
}

func NewAuthService(db *sql.DB, redisClient *redis.Client, cfg *config.Config, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		db:              db,
		redis:           redisClient,
		validator:       validator.New(),
		logger:          logger,
		jwt:             cfg.JWT,
		argon2:          cfg.Argon2,
		startingBalance: cfg.Credits.StartingBalance,
		now:             time.Now,
	}
}

// Register creates the user and its credit account in one transaction.
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("Registration attempt", zap.String("remote_addr", r.RemoteAddr))

	var req RegisterRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.DisplayName = strings.TrimSpace(req.DisplayName)

	if err := s.validator.Struct(&req); err != nil {
		s.logger.Info("Registration validation failed", zap.Error(err))
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	user, err := s.register(r.Context(), req)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			SendErrorResponse(w, "Email Already Exists", http.StatusConflict, nil)
			return
		}
		s.logger.Error("User creation failed", zap.String("email", req.Email), zap.Error(err))
		SendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}

	token, err := s.generateJWT(user)
	if err != nil {
		s.logger.Error("JWT generation failed", zap.String("user_id", user.ID), zap.Error(err))
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	s.logger.Info("Registration successful", zap.String("user_id", user.ID))
	writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: *user})
}

func (s *AuthService) register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	hashedPassword, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := &models.User{
		ID:            uuid.NewString(),
		Email:         req.Email,
		DisplayName:   req.DisplayName,
		Role:          defaultRole,
		CreditBalance: s.startingBalance,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, display_name, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		user.ID, user.Email, hashedPassword, user.DisplayName, user.Role, now); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (user_id, credit_balance, created_at, updated_at)
		VALUES ($1, $2, $3, $3)`,
		user.ID, user.CreditBalance, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return user, nil
}

// Login authenticates by email and password.
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var user models.User
	var hashedPassword string
	err := s.db.QueryRowContext(r.Context(),
		`SELECT u.id, u.email, u.display_name, u.role, u.password_hash, u.created_at, u.updated_at, COALESCE(a.credit_balance, 0)
		FROM users u LEFT JOIN accounts a ON a.user_id = u.id
		WHERE u.email = $1`,
		req.Email).Scan(&user.ID, &user.Email, &user.DisplayName, &user.Role, &hashedPassword, &user.CreatedAt, &user.UpdatedAt, &user.CreditBalance)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Error("Login lookup failed", zap.Error(err))
			SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
			return
		}
		s.logger.Info("Login for unknown email")
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if !s.verifyPassword(req.Password, hashedPassword) {
		s.logger.Info("Invalid password", zap.String("user_id", user.ID))
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	token, err := s.generateJWT(&user)
	if err != nil {
		s.logger.Error("JWT generation failed", zap.String("user_id", user.ID), zap.Error(err))
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	s.logger.Info("Login successful", zap.String("user_id", user.ID))
	writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: user})
}

// Logout blacklists the bearer token until it would have expired.
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	if token, ok := middleware.BearerToken(r); ok && s.redis != nil {
		expiry := time.Duration(s.jwt.ExpiryHours) * time.Hour
		if err := s.redis.Set(r.Context(), middleware.BlacklistKey(token), "1", expiry).Err(); err != nil {
			s.logger.Warn("Failed to blacklist token", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

// GetUserAccount returns the authenticated user with their credit balance.
func (s *AuthService) GetUserAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var user models.User
	err := s.db.QueryRowContext(r.Context(),
		`SELECT u.id, u.email, u.display_name, u.role, u.created_at, u.updated_at, COALESCE(a.credit_balance, 0)
		FROM users u LEFT JOIN accounts a ON a.user_id = u.id
		WHERE u.id = $1`,
		userID).Scan(&user.ID, &user.Email, &user.DisplayName, &user.Role, &user.CreatedAt, &user.UpdatedAt, &user.CreditBalance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeServiceError(w, s.logger, notFound("User"))
			return
		}
		s.logger.Error("Failed to fetch user details", zap.String("user_id", userID), zap.Error(err))
		SendErrorResponse(w, "Failed to fetch user details", http.StatusInternalServerError, nil)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (s *AuthService) generateJWT(user *models.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":      user.ID,
		"email":        user.Email,
		"display_name": user.DisplayName,
		"role":         user.Role,
		"exp":          s.now().Add(time.Duration(s.jwt.ExpiryHours) * time.Hour).Unix(),
	})

	return token.SignedString([]byte(s.jwt.SecretKey))
}

func (s *AuthService) hashPassword(password string) (string, error) {
	salt := make([]byte, s.argon2.SaltLength)
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, s.argon2.Time, s.argon2.Memory, s.argon2.Threads, s.argon2.KeyLength)
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func (s *AuthService) verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt, s.argon2.Time, s.argon2.Memory, s.argon2.Threads, uint32(len(hash)))
	return subtle.ConstantTimeCompare(hash, computedHash) == 1
}
