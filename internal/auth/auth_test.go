package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestCodec(t *testing.T, now func() time.Time) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec("access-secret", "refresh-secret",
		WithIssuer("test-issuer"),
		WithAccessTTL(time.Minute),
		WithRefreshTTL(time.Hour),
		WithCodecClock(now),
	)
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	return codec
}

func TestCodecSignAndVerify(t *testing.T) {
	now := time.Now()
	codec := newTestCodec(t, func() time.Time { return now })

	token, exp, err := codec.Sign(TokenAccess, "p-1", "a@example.com")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if want := now.UTC().Add(time.Minute); !exp.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, exp)
	}
	id, err := codec.Verify(token, TokenAccess)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.PrincipalID != "p-1" || id.Email != "a@example.com" || id.TokenType != TokenAccess {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestCodecRejectsWrongType(t *testing.T) {
	codec := newTestCodec(t, time.Now)

	access, _, err := codec.Sign(TokenAccess, "p-1", "a@example.com")
	if err != nil {
		t.Fatalf("Sign access: %v", err)
	}
	refresh, _, err := codec.Sign(TokenRefresh, "p-1", "a@example.com")
	if err != nil {
		t.Fatalf("Sign refresh: %v", err)
	}
	if _, err := codec.Verify(access, TokenRefresh); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access token accepted as refresh: %v", err)
	}
	if _, err := codec.Verify(refresh, TokenAccess); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token accepted as access: %v", err)
	}
}

func TestCodecRejectsTypeTagSignedWithWrongKey(t *testing.T) {
	codec := newTestCodec(t, time.Now)
	now := time.Now()
	claims := Claims{
		Type: TokenRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "test-issuer",
			Subject:   "p-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("access-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := codec.Verify(forged, TokenRefresh); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestCodecRejectsExpired(t *testing.T) {
	issued := time.Now().Add(-2 * time.Hour)
	signer := newTestCodec(t, func() time.Time { return issued })
	token, _, err := signer.Sign(TokenRefresh, "p-1", "")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	verifier := newTestCodec(t, time.Now)
	if _, err := verifier.Verify(token, TokenRefresh); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
}

func TestCodecRejectsOtherAlgorithms(t *testing.T) {
	codec := newTestCodec(t, time.Now)
	token, _, err := codec.Sign(TokenAccess, "p-1", "")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	parts := strings.Split(token, ".")
	// {"alg":"none","typ":"JWT"}
	unsigned := "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0." + parts[1] + "."
	if _, err := codec.Verify(unsigned, TokenAccess); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected alg none to fail, got %v", err)
	}
	if _, err := codec.Verify("garbage", TokenAccess); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected garbage to fail, got %v", err)
	}
}

func TestNewTokenCodecRequiresDistinctSecrets(t *testing.T) {
	if _, err := NewTokenCodec("same", "same"); err == nil {
		t.Fatalf("expected error for shared secret")
	}
	if _, err := NewTokenCodec("", "x"); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
