package auth

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestLoginWithPasswordHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	t.Setenv("ADMIN_USERNAME", "operator")
	t.Setenv("ADMIN_PASSWORD_HASH", string(hash))
	t.Setenv("ADMIN_PASSWORD", "")
	t.Setenv("JWT_SECRET", "test-secret")

	s := NewService()

	resp, err := s.Login(LoginRequest{Username: "operator", Password: "s3cret"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.Token == "" {
		t.Error("empty token")
	}
	if resp.Username != "operator" {
		t.Errorf("username = %q", resp.Username)
	}

	if _, err := s.Login(LoginRequest{Username: "operator", Password: "wrong"}); err != ErrInvalidCreds {
		t.Errorf("wrong password: err = %v, want ErrInvalidCreds", err)
	}
	if _, err := s.Login(LoginRequest{Username: "intruder", Password: "s3cret"}); err != ErrInvalidCreds {
		t.Errorf("wrong username: err = %v, want ErrInvalidCreds", err)
	}
}

func TestLoginWithoutConfiguredPassword(t *testing.T) {
	t.Setenv("ADMIN_USERNAME", "admin")
	t.Setenv("ADMIN_PASSWORD_HASH", "")
	t.Setenv("ADMIN_PASSWORD", "")

	if _, err := NewService().Login(LoginRequest{Username: "admin", Password: "anything"}); err == nil {
		t.Error("login must fail when no password is configured")
	}
}
