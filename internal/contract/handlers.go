package contract

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/atelierhq/atelier/internal/payment"
	"github.com/atelierhq/atelier/internal/signing"
	"github.com/atelierhq/atelier/internal/validation"
)

// Handler provides HTTP endpoints for contract operations.
type Handler struct {
	service     *Service
	adminSecret string
}

// NewHandler creates a new contract handler. adminSecret guards the
// cancellation-resolution and payment-confirmation endpoints; empty
// disables both.
func NewHandler(service *Service, adminSecret string) *Handler {
	return &Handler{service: service, adminSecret: adminSecret}
}

// RegisterRoutes sets up contract routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/contracts", h.OfferContract)
	r.GET("/contracts/:id", h.GetContract)
	r.GET("/contracts/:id/actions", h.GetActions)
	r.GET("/contracts/:id/signature-data", h.GetSignatureData)
	r.GET("/users/:userId/contracts", h.ListContracts)

	r.POST("/contracts/:id/decline", h.DeclineContract)
	r.POST("/contracts/:id/redraft", h.RedraftContract)
	r.POST("/contracts/:id/withdraw", h.WithdrawContract)
	r.POST("/contracts/:id/sign", h.SignContract)
	r.POST("/contracts/:id/finalize", h.FinalizeContract)
	r.POST("/contracts/:id/retry-payment", h.RetryPayment)
	r.POST("/contracts/:id/confirm-payment", h.ConfirmPayment)
	r.POST("/contracts/:id/settle", h.ConfirmSettlement)
	r.POST("/contracts/:id/cancel", h.RequestCancellation)
	r.POST("/contracts/:id/cancellation/resolve", h.ResolveCancellation)
}

// callerID returns the authenticated user for the request. The upstream
// gateway handles authentication and forwards the identity.
func callerID(c *gin.Context) string {
	if id := c.GetString("authUserID"); id != "" {
		return id
	}
	return c.GetHeader("X-User-Id")
}

func unauthenticated(c *gin.Context) bool {
	if callerID(c) == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthenticated",
			"message": "Caller identity is required",
		})
		return true
	}
	return false
}

// OfferContract handles POST /v1/contracts
func (h *Handler) OfferContract(c *gin.Context) {
	if unauthenticated(c) {
		return
	}

	var req OfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("applicationId", req.ApplicationID),
		validation.Required("title", req.Title),
		validation.ValidAddress("leader.walletAddress", req.Leader.WalletAddress),
		validation.ValidAddress("artist.walletAddress", req.Artist.WalletAddress),
		validation.ValidAmount("totalAmount", req.TotalAmount),
		validation.ValidDateWindow("startAt", req.StartAt, req.EndAt),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	contract, err := h.service.Offer(c.Request.Context(), callerID(c), req)
	if err != nil {
		h.mapError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"contract": contract})
}

// GetContract handles GET /v1/contracts/:id
func (h *Handler) GetContract(c *gin.Context) {
	if unauthenticated(c) {
		return
	}

	contract, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.mapError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"contract": contract})
}

// GetActions handles GET /v1/contracts/:id/actions
//
// The action set is computed for the caller's role on this contract, so the
// UI renders from one authoritative answer instead of local conditionals.
func (h *Handler) GetActions(c *gin.Context) {
	if unauthenticated(c) {
		return
	}

	contract, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.mapError(c, err)
		return
	}

	role := contract.RoleOf(callerID(c))
	if role == "" {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "Caller is not a party to this contract",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  contract.Status,
		"role":    role,
		"actions": ActionsFor(contract.Status, role),
	})
}

// GetSignatureData handles GET /v1/contracts/:id/signature-data
func (h *Handler) GetSignatureData(c *gin.Context) {
	terms, hash, err := h.service.SignatureData(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.mapError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"terms":     terms,
		"typedHash": hash,
	})
}

// ListContracts handles GET /v1/users/:userId/contracts
func (h *Handler) ListContracts(c *gin.Context) {
	userID := c.Param("userId")
	status := c.Query("status")
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 200 {
				limit = 200
			}
		}
	}

	contracts, err := h.service.ListByUser(c.Request.Context(), userID, status, limit)
	if err != nil {
		h.mapError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"contracts": contracts,
		"count":     len(contracts),
	})
}

// DeclineContract handles POST /v1/contracts/:id/decline
func (h *Handler) DeclineContract(c *gin.Context) {
	if unauthenticated(c) {
		return
	}

	contract, err := h.service.Decline(c.Request.Context(), c.Param("id"), callerID(c))
	if err != nil {
		h.mapError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"contract": contract})
}

// RedraftContract handles POST /v1/contracts/:id/redraft
func (h *Handler) RedraftContract(c *gin.Context) {
	if unauthenticated(c) {
		return
	}

	var req RedraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.ValidAmount("totalAmount", req.TotalAmount),
		validation.ValidDateWindow("startAt", req.StartAt, req.EndAt),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	contract, err := h.service.Redraft(c.Request.Context(), c.Param("id"), callerID(c), req)
	if err != nil {
		h.mapError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"contract": contract})
}

// WithdrawContract handles POST /v1/contracts/:id/withdraw
func (h *Handler) WithdrawContract(c *gin.Context) {
	if unauthenticated(c) {
		return
	}

	contract, err := h.service.Withdraw(c.Request.Context(), c.Param("id"), callerID(c))
	if err != nil {
		h.mapError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"contract": contract})
}

// SignContract handles POST /v1/contracts/:id/sign (artist)
func (h *Handler) SignContract(c *gin.Context) {
	if unauthenticated(c) {
		return
	}

	var req SignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Signature and typedHash are required",
		})
		return
	}

	contract, err := h.service.SignAsArtist(c.Request.Context(), c.Param("id"), callerID(c), req)
	if err != nil {
		h.mapError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"contract": contract})
}

// FinalizeContract handles POST /v1/contracts/:id/finalize (leader)
func (h *Handler) FinalizeContract(c *gin.Context) {
	if unauthenticated(c) {
		return
	}

	var req SignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Signature and typedHash are required",
		})
		return
	}

	contract, order, err := h.service.FinalizeAsLeader(c.Request.Context(), c.Param("id"), callerID(c), req)
	if err != nil {
		h.mapError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"contract": contract,
		"order":    order,
	})
}

// RetryPayment handles POST /v1/contracts/:id/retry-payment
func (h *Handler) RetryPayment(c *gin.Context) {
	if unauthenticated(c) {
		return
	}

	contract, order, err := h.service.RetryPayment(c.Request.Context(), c.Param("id"), callerID(c))
	if err != nil {
		h.mapError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"contract": contract,
		"order":    order,
	})
}

// ConfirmPayment handles POST /v1/contracts/:id/confirm-payment
//
// Admin-only relay for processor success signals that arrive outside the
// signed webhook path. A matching orderId alone is not proof of payment,
// so the caller must present the admin secret.
func (h *Handler) ConfirmPayment(c *gin.Context) {
	if !h.adminOnly(c) {
		return
	}

	var req struct {
		OrderID string `json:"orderId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "orderId is required",
		})
		return
	}

	contract, err := h.service.ConfirmPayment(c.Request.Context(), c.Param("id"), req.OrderID)
	if err != nil {
		h.mapError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"contract": contract})
}

// ConfirmSettlement handles POST /v1/contracts/:id/settle
func (h *Handler) ConfirmSettlement(c *gin.Context) {
	if unauthenticated(c) {
		return
	}

	contract, err := h.service.ConfirmSettlement(c.Request.Context(), c.Param("id"), callerID(c))
	if err != nil {
		h.mapError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"contract": contract})
}

// RequestCancellation handles POST /v1/contracts/:id/cancel
func (h *Handler) RequestCancellation(c *gin.Context) {
	if unauthenticated(c) {
		return
	}

	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Reason is required",
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("reason", req.Reason),
		validation.MaxLength("reason", req.Reason, validation.MaxReasonLength),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	contract, err := h.service.RequestCancellation(c.Request.Context(), c.Param("id"), callerID(c), req.Reason)
	if err != nil {
		h.mapError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"contract": contract})
}

// ResolveCancellation handles POST /v1/contracts/:id/cancellation/resolve
//
// Admin-only arbitration endpoint.
func (h *Handler) ResolveCancellation(c *gin.Context) {
	if !h.adminOnly(c) {
		return
	}

	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	contract, err := h.service.ResolveCancellation(c.Request.Context(), c.Param("id"), req.Approve)
	if err != nil {
		h.mapError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"contract": contract})
}

// adminOnly rejects the request unless it carries the admin secret.
// Returns true when the caller may proceed.
func (h *Handler) adminOnly(c *gin.Context) bool {
	if h.adminSecret == "" ||
		subtle.ConstantTimeCompare([]byte(c.GetHeader("X-Admin-Secret")), []byte(h.adminSecret)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthenticated",
			"message": "Admin credentials required",
		})
		return false
	}
	return true
}

// mapError maps service errors to HTTP responses.
func (h *Handler) mapError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"

	var stale *StaleStateError
	switch {
	case errors.Is(err, ErrContractNotFound):
		status = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, ErrUnauthorized):
		status = http.StatusForbidden
		code = "forbidden"
	case errors.As(err, &stale):
		status = http.StatusConflict
		code = "stale_state"
	case errors.Is(err, ErrAlreadyResolved):
		status = http.StatusConflict
		code = "already_resolved"
	case errors.Is(err, ErrOperationInFlight):
		status = http.StatusConflict
		code = "operation_in_flight"
	case errors.Is(err, ErrSignatureExists):
		status = http.StatusConflict
		code = "signature_exists"
	case errors.Is(err, ErrApplicationTaken):
		status = http.StatusConflict
		code = "application_taken"
	case errors.Is(err, ErrOrderMismatch):
		status = http.StatusConflict
		code = "order_mismatch"
	case errors.Is(err, ErrBundleMissing):
		status = http.StatusConflict
		code = "bundle_required"
	case errors.Is(err, ErrSignatureMissing):
		status = http.StatusConflict
		code = "signature_missing"
	case errors.Is(err, ErrReasonRequired), errors.Is(err, ErrNoCancellationPending):
		status = http.StatusBadRequest
		code = "invalid_request"
	case errors.Is(err, signing.ErrHashMismatch),
		errors.Is(err, signing.ErrSignerMismatch),
		errors.Is(err, signing.ErrMalformedSignature):
		status = http.StatusBadRequest
		code = "signature_invalid"
	case errors.Is(err, payment.ErrProcessorUnavailable):
		status = http.StatusServiceUnavailable
		code = "payment_unavailable"
	}

	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
