package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidEthAddress(t *testing.T) {
	tests := []struct {
		addr  string
		valid bool
	}{
		{"0x1234567890123456789012345678901234567890", true},
		{"0xabcdefABCDEF1234567890123456789012345678", true},
		{"1234567890123456789012345678901234567890", false},     // No 0x
		{"0x12345678901234567890123456789012345678", false},     // Too short
		{"0x123456789012345678901234567890123456789012", false}, // Too long
		{"0xGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGG", false},   // Invalid chars
		{"", false},
		{"0x", false},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.valid, IsValidEthAddress(tc.addr), "address %q", tc.addr)
	}
}

func TestIsValidWalletID(t *testing.T) {
	assert.True(t, IsValidWalletID("0x5d3a536e4d6dbd6114cc1ead35777bab948e3643"))
	assert.True(t, IsValidWalletID("wallet-17"))
	assert.False(t, IsValidWalletID(""))
	assert.False(t, IsValidWalletID("has space"))
	assert.False(t, IsValidWalletID("a/b"))
	assert.False(t, IsValidWalletID(strings.Repeat("a", MaxWalletIDLength+1)))
}

func TestSanitizeWalletID(t *testing.T) {
	assert.Equal(t, "0xabcdef1234567890123456789012345678901234", SanitizeWalletID("  0xABCDEF1234567890123456789012345678901234 "))
	assert.Equal(t, "wallet-17", SanitizeWalletID("Wallet-17"))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "hello", SanitizeString("  hello  ", 10))
	assert.Equal(t, "hello", SanitizeString("hello world", 5))
	assert.Equal(t, "ab", SanitizeString("a\x00b", 10))
}

func TestValidate(t *testing.T) {
	errs := Validate(
		Required("addresses", ""),
		ValidWalletID("address", "bad id"),
		MaxItems("addresses", 101, 100),
	)

	require.Len(t, errs, 3)
	assert.Equal(t, "addresses: is required", errs.Error())

	assert.Empty(t, Validate(Required("a", "x"), ValidWalletID("b", ""), MaxItems("c", 1, 1)))
}

func TestWalletParamMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/wallets/:address", WalletParamMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/wallets/0x1234567890123456789012345678901234567890", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/wallets/bad%20id", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_address")
}

func TestRequestSizeMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestSizeMiddleware(8))
	r.POST("/echo", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"addresses":["0x1"]}`)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
