package identity

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	tokens, err := NewTokens("test-secret", "agro-trade", time.Hour)
	if err != nil {
		t.Fatalf("NewTokens() error: %v", err)
	}

	raw, err := tokens.Issue(Principal{UserID: "u-1", Role: "FARMER"})
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	p, err := tokens.Verify(raw)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if p.UserID != "u-1" || p.Role != "FARMER" {
		t.Errorf("Verify() = %+v", p)
	}
}

func TestVerifyRejects(t *testing.T) {
	tokens, _ := NewTokens("test-secret", "agro-trade", time.Hour)
	other, _ := NewTokens("other-secret", "agro-trade", time.Hour)
	wrongIssuer, _ := NewTokens("test-secret", "someone-else", time.Hour)

	expired, _ := NewTokens("test-secret", "agro-trade", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	tests := []struct {
		name   string
		issuer *Tokens
	}{
		{name: "wrong key", issuer: other},
		{name: "wrong issuer", issuer: wrongIssuer},
		{name: "expired", issuer: expired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := tt.issuer.Issue(Principal{UserID: "u-1", Role: "BUYER"})
			if err != nil {
				t.Fatalf("Issue() error: %v", err)
			}
			if _, err := tokens.Verify(raw); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
			}
		})
	}

	if _, err := tokens.Verify("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify(garbage) error = %v, want ErrInvalidToken", err)
	}
}

func TestNewTokensRequiresKey(t *testing.T) {
	if _, err := NewTokens("", "agro-trade", time.Hour); !errors.Is(err, ErrMissingKey) {
		t.Errorf("NewTokens() error = %v, want ErrMissingKey", err)
	}
}

func TestMiddleware(t *testing.T) {
	tokens, _ := NewTokens("test-secret", "", time.Hour)
	raw, _ := tokens.Issue(Principal{UserID: "u-7", Role: "TRANSPORTER"})

	var seen Principal
	handler := Middleware(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing header", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "valid token", header: "Bearer " + raw, want: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	if seen.UserID != "u-7" || seen.Role != "TRANSPORTER" {
		t.Errorf("principal in context = %+v", seen)
	}
}
