package server

import (
	"errors"
	"net/http"

	"github.com/Ashenafi-pixel/gamecrafter-case-server/purchase"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/store"
	"github.com/gin-gonic/gin"
)

// APIError is the standard error response of the case APIs.
type APIError struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeError(c *gin.Context, code int, errMsg, codeStr string) {
	c.AbortWithStatusJSON(code, APIError{
		Error:   errMsg,
		Code:    codeStr,
		Message: errMsg,
	})
}

// writePurchaseError maps engine errors onto status codes. Anything
// unrecognised is reported without its internals.
func writePurchaseError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, purchase.ErrAccountNotFound):
		writeError(c, http.StatusNotFound, err.Error(), "ACCOUNT_NOT_FOUND")
	case errors.Is(err, purchase.ErrAccountBanned):
		writeError(c, http.StatusForbidden, err.Error(), "ACCOUNT_BANNED")
	case errors.Is(err, purchase.ErrCaseUnavailable):
		writeError(c, http.StatusConflict, err.Error(), "CASE_UNAVAILABLE")
	case errors.Is(err, purchase.ErrInsufficientBalance):
		writeError(c, http.StatusPaymentRequired, err.Error(), "INSUFFICIENT_BALANCE")
	case errors.Is(err, purchase.ErrIdempotencyKeyConflict):
		writeError(c, http.StatusConflict, err.Error(), "IDEMPOTENCY_KEY_CONFLICT")
	case errors.Is(err, purchase.ErrInvalidQuantity), errors.Is(err, purchase.ErrIdempotencyKeyRequired):
		writeError(c, http.StatusBadRequest, err.Error(), "INVALID_REQUEST")
	case errors.Is(err, store.ErrTxConflict):
		writeError(c, http.StatusServiceUnavailable, "purchase conflicted with concurrent activity, retry with the same idempotency key", "TRY_AGAIN")
	default:
		writeError(c, http.StatusInternalServerError, "internal error", "TECHNICAL_ERROR")
	}
}
