package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chat-platform/internal/config"
	"chat-platform/internal/database"
	"chat-platform/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

var ErrMissingToken = errors.New("missing token")

// Service validates the bearer tokens issued by the account service and
// resolves them to users. Credentials themselves are handled elsewhere.
type Service struct {
	users database.IdentityStore
	cfg   *config.Config
}

func NewService(users database.IdentityStore, cfg *config.Config) *Service {
	return &Service{
		users: users,
		cfg:   cfg,
	}
}

func (s *Service) ValidateToken(tokenString string) (*jwt.MapClaims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &jwt.MapClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.cfg.JWT.Secret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

func (s *Service) GetUserFromToken(ctx context.Context, tokenString string) (*models.User, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	// JSON numbers decode as float64.
	userIDFloat, ok := (*claims)["user_id"].(float64)
	if !ok || userIDFloat <= 0 {
		return nil, fmt.Errorf("invalid user ID in token")
	}

	user, err := s.users.GetUserByID(ctx, int64(userIDFloat))
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", int64(userIDFloat), err)
	}
	return user, nil
}

// IssueToken signs a token for user with the configured lifetime.
func (s *Service) IssueToken(user *models.User) (string, error) {
	claims := jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"exp":      time.Now().Add(s.cfg.JWT.ExpiresIn).Unix(),
		"iat":      time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.cfg.JWT.Secret)
}

// TokenFromHeader extracts the token from an "Authorization: Bearer" value.
func TokenFromHeader(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
