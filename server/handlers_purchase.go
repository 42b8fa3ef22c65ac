package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/Ashenafi-pixel/gamecrafter-case-server/purchase"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/store"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// purchaseRequest is the body of POST /api/purchases. The key may also
// arrive in the Idempotency-Key header.
type purchaseRequest struct {
	AccountID      string `json:"account_id" binding:"required"`
	CaseID         string `json:"case_id" binding:"required"`
	Quantity       int    `json:"quantity" binding:"required,min=1"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (s *Server) createPurchase(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request: "+err.Error(), "INVALID_REQUEST")
		return
	}
	if h := c.GetHeader("Idempotency-Key"); h != "" {
		req.IdempotencyKey = h
	}

	if s.limiter != nil && s.cfg.RateLimit.PurchasesPerMinute > 0 && !s.completed(c, req.IdempotencyKey) {
		allowed, err := s.limiter.Allow(c.Request.Context(), req.AccountID, "purchase", s.cfg.RateLimit.PurchasesPerMinute, time.Minute)
		if err != nil {
			s.log.Warn("rate limit check failed", zap.Error(err))
		} else if !allowed {
			writeError(c, http.StatusTooManyRequests, "too many purchases, please wait", "RATE_LIMITED")
			return
		}
	}

	res, err := s.purchases.Purchase(c.Request.Context(), purchase.Request{
		AccountID:      req.AccountID,
		CaseID:         req.CaseID,
		Quantity:       req.Quantity,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writePurchaseError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// completed reports whether key already has a stored receipt. Retries of a
// finished purchase are replays and do not count against the rate limit.
func (s *Server) completed(c *gin.Context, key string) bool {
	if key == "" {
		return false
	}
	_, err := s.purchases.Lookup(c.Request.Context(), key)
	return err == nil
}

func (s *Server) getPurchase(c *gin.Context) {
	receipt, err := s.purchases.Lookup(c.Request.Context(), c.Param("key"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(c, http.StatusNotFound, "purchase not found", "NOT_FOUND")
		return
	}
	if err != nil {
		s.log.Error("lookup purchase", zap.Error(err))
		writeError(c, http.StatusInternalServerError, "internal error", "TECHNICAL_ERROR")
		return
	}
	c.JSON(http.StatusOK, receipt)
}
