// Package validation provides input validation for the walletrisk API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/mbd888/walletrisk/internal/txdata"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxWalletIDLength bounds wallet identifiers accepted by the API.
const MaxWalletIDLength = 128

// walletIDRegex accepts the non-hex identifiers some datasets use as wallet keys.
var walletIDRegex = regexp.MustCompile(`^[A-Za-z0-9._:-]+$`)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidEthAddress checks if a string is a 0x-prefixed Ethereum address
func IsValidEthAddress(addr string) bool {
	return strings.HasPrefix(addr, "0x") && common.IsHexAddress(addr)
}

// IsValidWalletID checks if a string can identify a wallet: an Ethereum
// address or a short identifier without separators or whitespace.
func IsValidWalletID(id string) bool {
	if id == "" || len(id) > MaxWalletIDLength {
		return false
	}
	return IsValidEthAddress(id) || walletIDRegex.MatchString(id)
}

// SanitizeString trims whitespace, removes null bytes and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// SanitizeWalletID normalizes a wallet identifier the same way input
// transactions are normalized, so API lookups match stored scores.
func SanitizeWalletID(id string) string {
	return txdata.NormalizeAddress(id)
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate validates a request and returns errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidWalletID checks if a field is a usable wallet identifier
func ValidWalletID(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidWalletID(strings.TrimSpace(value)) {
			return &ValidationError{Field: field, Message: "must be a wallet address or identifier"}
		}
		return nil
	}
}

// MaxItems checks that a list does not exceed max entries
func MaxItems(field string, n, max int) func() *ValidationError {
	return func() *ValidationError {
		if n > max {
			return &ValidationError{Field: field, Message: "too many items"}
		}
		return nil
	}
}

// WalletParamMiddleware validates the :address URL parameter on routes that use it.
func WalletParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		addr := c.Param("address")
		if addr != "" && !IsValidWalletID(addr) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_address",
				"message": "address must be a wallet address (0x + 40 hex chars) or identifier",
			})
			return
		}
		c.Next()
	}
}
