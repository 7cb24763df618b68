package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amirphl/tablecast/app/services"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthTestApp(t *testing.T, ttl time.Duration) (*fiber.App, services.TokenService) {
	t.Helper()
	tokens, err := services.NewTokenService(ttl, "tablecast", "staff", "test-secret")
	require.NoError(t, err)

	app := fiber.New()
	app.Use(Metrics())
	app.Get("/protected", NewAuthMiddleware(tokens).Authenticate(), func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"staff_id": c.Locals("staff_id")})
	})
	return app, tokens
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Error.Code
}

func TestAuthenticate(t *testing.T) {
	app, tokens := newAuthTestApp(t, time.Hour)
	valid, err := tokens.GenerateAccessToken(7)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{name: "missing header", header: "", code: "MISSING_AUTHORIZATION_HEADER"},
		{name: "wrong scheme", header: "Basic abc", code: "INVALID_AUTHORIZATION_FORMAT"},
		{name: "empty token", header: "Bearer ", code: "MISSING_ACCESS_TOKEN"},
		{name: "bare scheme", header: "Bearer", code: "MISSING_ACCESS_TOKEN"},
		{name: "scheme prefix only", header: "Bearerabc", code: "INVALID_AUTHORIZATION_FORMAT"},
		{name: "extra segments", header: "Bearer a b", code: "INVALID_AUTHORIZATION_FORMAT"},
		{name: "garbage token", header: "Bearer not-a-jwt", code: "TOKEN_INVALID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, tt.code, errorCode(t, resp))
		})
	}

	t.Run("valid token sets staff id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+valid)
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.EqualValues(t, 7, body["staff_id"])
	})
}

func TestAuthenticateExpiredToken(t *testing.T) {
	app, tokens := newAuthTestApp(t, time.Nanosecond)
	expired, err := tokens.GenerateAccessToken(7)
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "TOKEN_EXPIRED", errorCode(t, resp))
}
