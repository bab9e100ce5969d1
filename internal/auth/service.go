// Package auth guards the admin API with a single operator account
// configured through the environment.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCreds = errors.New("invalid credentials")

	jwtSecretOnce    sync.Once
	jwtSecretRuntime []byte
	jwtSecretErr     error
)

func jwtSecretFromEnv() ([]byte, error) {
	jwtSecretOnce.Do(func() {
		secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
		if secret != "" {
			jwtSecretRuntime = []byte(secret)
			return
		}

		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			jwtSecretErr = fmt.Errorf("failed to generate JWT fallback secret: %w", err)
			return
		}

		jwtSecretRuntime = []byte(base64.RawURLEncoding.EncodeToString(buf))
		log.Print("JWT_SECRET is not set; using ephemeral in-memory fallback secret")
	})

	if jwtSecretErr != nil {
		return nil, jwtSecretErr
	}
	if len(jwtSecretRuntime) == 0 {
		return nil, errors.New("JWT secret unavailable")
	}

	return jwtSecretRuntime, nil
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service checks the operator credentials. ADMIN_PASSWORD_HASH (bcrypt) is
// preferred; ADMIN_PASSWORD is accepted for local development.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

func (s *Service) Login(req LoginRequest) (*LoginResponse, error) {
	username := strings.TrimSpace(os.Getenv("ADMIN_USERNAME"))
	if username == "" {
		username = "admin"
	}
	if subtle.ConstantTimeCompare([]byte(req.Username), []byte(username)) != 1 {
		return nil, ErrInvalidCreds
	}

	if hash := os.Getenv("ADMIN_PASSWORD_HASH"); hash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
			return nil, ErrInvalidCreds
		}
	} else if plain := os.Getenv("ADMIN_PASSWORD"); plain != "" {
		if subtle.ConstantTimeCompare([]byte(req.Password), []byte(plain)) != 1 {
			return nil, ErrInvalidCreds
		}
	} else {
		return nil, errors.New("no admin password configured (set ADMIN_PASSWORD_HASH or ADMIN_PASSWORD)")
	}

	expiresAt := time.Now().Add(24 * time.Hour)
	token, err := generateToken(username, expiresAt)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{Token: token, Username: username, ExpiresAt: expiresAt}, nil
}

func generateToken(username string, expiresAt time.Time) (string, error) {
	secretKey, err := jwtSecretFromEnv()
	if err != nil {
		return "", err
	}

	claims := jwt.MapClaims{
		"sub": username,
		"iat": time.Now().Unix(),
		"exp": expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secretKey)
}
