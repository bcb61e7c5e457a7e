package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/WouterMerckaert-dev/BudgetPal/internal/core"
)

const secret = "test-secret-0123456789"

func TestVerifier_RoundTrip(t *testing.T) {
	v := NewVerifier(secret, "budgetpal")
	token, err := v.Issue(core.Identity{UserID: "u1", Email: "ann@example.com", Name: "Ann"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	who, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if who.UserID != "u1" || who.Email != "ann@example.com" || who.Name != "Ann" {
		t.Fatalf("unexpected identity: %+v", who)
	}
}

func TestVerifier_Rejects(t *testing.T) {
	v := NewVerifier(secret, "budgetpal")
	valid := core.Identity{UserID: "u1"}

	expired, _ := v.Issue(valid, -time.Minute)
	otherKey, _ := NewVerifier("another-secret-0123456", "budgetpal").Issue(valid, time.Hour)
	otherIssuer, _ := NewVerifier(secret, "someone-else").Issue(valid, time.Hour)
	noSubject, _ := v.Issue(core.Identity{}, time.Hour)
	noneAlg, _ := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := map[string]string{
		"expired":      expired,
		"wrong key":    otherKey,
		"wrong issuer": otherIssuer,
		"no subject":   noSubject,
		"none alg":     noneAlg,
		"garbage":      "not.a.token",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr error
	}{
		{"Bearer abc", "abc", nil},
		{"bearer  abc ", "abc", nil},
		{"", "", ErrMissingToken},
		{"Basic abc", "", ErrInvalidToken},
		{"Bearer", "", ErrInvalidToken},
	}
	for _, tt := range tests {
		got, err := BearerToken(tt.header)
		if !errors.Is(err, tt.wantErr) || got != tt.want {
			t.Errorf("BearerToken(%q) = %q, %v; want %q, %v", tt.header, got, err, tt.want, tt.wantErr)
		}
	}
}
