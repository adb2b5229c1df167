package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/buckneer/beastie-club/wheel"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const testSecret = "test-secret"

func identityTestRouter(t *testing.T) (*gin.Engine, *wheel.Identity, *bool) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var captured wheel.Identity
	var resolved bool

	r := gin.New()
	r.Use(IdentityMiddleware(testSecret, zerolog.Nop()))
	r.GET("/spin", func(c *gin.Context) {
		captured, resolved = GetIdentity(c)
		c.Status(http.StatusOK)
	})
	return r, &captured, &resolved
}

func TestIdentityMiddleware(t *testing.T) {
	validToken, err := GenerateToken(testSecret, "acct-1", "marko", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}
	wrongKeyToken, err := GenerateToken("other-secret", "acct-1", "marko", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}
	expiredToken, err := GenerateToken(testSecret, "acct-1", "marko", -time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}

	tests := []struct {
		name         string
		authHeader   string
		deviceHeader string
		wantStatus   int
		wantKind     wheel.IdentityKind
		wantSubject  string
		wantResolved bool
	}{
		{
			name:         "valid token yields account identity",
			authHeader:   "Bearer " + validToken,
			wantStatus:   http.StatusOK,
			wantKind:     wheel.IdentityAccount,
			wantSubject:  "acct-1",
			wantResolved: true,
		},
		{
			name:         "device header yields guest identity",
			deviceHeader: "device-1",
			wantStatus:   http.StatusOK,
			wantKind:     wheel.IdentityGuest,
			wantSubject:  "device-1",
			wantResolved: true,
		},
		{
			name:         "valid token wins over device header",
			authHeader:   "Bearer " + validToken,
			deviceHeader: "device-1",
			wantStatus:   http.StatusOK,
			wantKind:     wheel.IdentityAccount,
			wantSubject:  "acct-1",
			wantResolved: true,
		},
		{
			name:         "no credentials proceeds without identity",
			wantStatus:   http.StatusOK,
			wantResolved: false,
		},
		{
			name:       "wrong signing key is rejected",
			authHeader: "Bearer " + wrongKeyToken,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "expired token is rejected",
			authHeader: "Bearer " + expiredToken,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "malformed header is rejected",
			authHeader: "NotBearer " + validToken,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:         "invalid token never downgrades to guest",
			authHeader:   "Bearer garbage",
			deviceHeader: "device-1",
			wantStatus:   http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, captured, resolved := identityTestRouter(t)

			req := httptest.NewRequest(http.MethodGet, "/spin", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			if tt.deviceHeader != "" {
				req.Header.Set(DeviceIDHeader, tt.deviceHeader)
			}

			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if *resolved != tt.wantResolved {
				t.Fatalf("identity resolved = %v, want %v", *resolved, tt.wantResolved)
			}
			if !tt.wantResolved {
				return
			}
			if captured.Kind != tt.wantKind || captured.Subject() != tt.wantSubject {
				t.Errorf("identity = %v, want %v:%s", *captured, tt.wantKind, tt.wantSubject)
			}
		})
	}
}

func TestParseTokenRoundtrip(t *testing.T) {
	token, err := GenerateToken(testSecret, "acct-9", "jelena", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}

	claims, err := ParseToken(testSecret, token)
	if err != nil {
		t.Fatalf("ParseToken() error: %v", err)
	}
	if claims.AccountID != "acct-9" {
		t.Errorf("AccountID = %q, want %q", claims.AccountID, "acct-9")
	}
	if claims.Username != "jelena" {
		t.Errorf("Username = %q, want %q", claims.Username, "jelena")
	}
}
