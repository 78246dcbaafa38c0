package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/harvestlink/escrow-ledger/internal/escrow"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EscrowHandler exposes the escrow ledger over HTTP.
type EscrowHandler struct {
	svc    *escrow.Service
	logger *zap.Logger
}

// NewEscrowHandler creates a new EscrowHandler.
func NewEscrowHandler(svc *escrow.Service, logger *zap.Logger) *EscrowHandler {
	return &EscrowHandler{svc: svc, logger: logger}
}

// Register mounts the escrow routes on the given router group.
func (h *EscrowHandler) Register(rg *gin.RouterGroup) {
	e := rg.Group("/escrow")
	{
		e.POST("", h.Create)
		e.GET("", h.ListChain)
		e.GET("/root", h.Root)
		e.GET("/entries/:id", h.GetEntry)
		e.POST("/entries/:id/release", h.Release)
		e.GET("/verify/:hash", h.VerifyByHash)
		e.GET("/users/:id", h.ListForUser)
	}
}

type createRequest struct {
	FromUserID  int64            `json:"from_user_id"`
	ToUserID    int64            `json:"to_user_id"`
	Amount      *decimal.Decimal `json:"amount"`
	Description string           `json:"description"`
	Metadata    map[string]any   `json:"metadata"`
}

// Create handles POST /escrow — appends a new entry to the ledger.
func (h *EscrowHandler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// Amount is a pointer so an absent field is distinguishable from an
	// explicit zero; only the former is rejected.
	if req.Amount == nil {
		h.respondError(c, &escrow.ValidationError{Field: "amount", Reason: "is required"})
		return
	}

	entry, err := h.svc.Create(c.Request.Context(), escrow.CreateInput{
		FromUserID:  req.FromUserID,
		ToUserID:    req.ToUserID,
		Amount:      *req.Amount,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	RecordLedgerAppend()
	c.JSON(http.StatusCreated, entry)
}

type releaseRequest struct {
	OnChainTxHash string `json:"on_chain_tx_hash"`
	ReleaseNotes  string `json:"release_notes"`
}

// Release handles POST /escrow/entries/:id/release.
func (h *EscrowHandler) Release(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req releaseRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	entry, err := h.svc.Release(c.Request.Context(), id, req.OnChainTxHash, req.ReleaseNotes)
	if err != nil {
		h.respondError(c, err)
		return
	}

	RecordLedgerRelease()
	c.JSON(http.StatusOK, entry)
}

// GetEntry handles GET /escrow/entries/:id.
func (h *EscrowHandler) GetEntry(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	entry, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// VerifyByHash handles GET /escrow/verify/:hash.
func (h *EscrowHandler) VerifyByHash(c *gin.Context) {
	result, err := h.svc.VerifyByHash(c.Request.Context(), c.Param("hash"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	RecordChainVerification(result.IntegrityCheck)
	c.JSON(http.StatusOK, result)
}

// ListChain handles GET /escrow — walks the chain with per-entry
// verification and reports aggregate integrity.
func (h *EscrowHandler) ListChain(c *gin.Context) {
	limit, offset, ok := pagination(c)
	if !ok {
		return
	}

	report, err := h.svc.VerifyChain(c.Request.Context(), limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}

	RecordChainVerification(report.ChainIntegrity)
	c.JSON(http.StatusOK, report)
}

// Root handles GET /escrow/root — returns the chain length and tip hash.
func (h *EscrowHandler) Root(c *gin.Context) {
	count, root, err := h.svc.Root(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entries": count,
		"root":    root,
	})
}

// ListForUser handles GET /escrow/users/:id?direction=sent|received|all.
func (h *EscrowHandler) ListForUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	limit, offset, ok := pagination(c)
	if !ok {
		return
	}

	ledger, err := h.svc.ListForUser(c.Request.Context(), id,
		escrow.Direction(c.Query("direction")), limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ledger)
}

// respondError maps service errors onto HTTP status codes.
func (h *EscrowHandler) respondError(c *gin.Context, err error) {
	var validationErr *escrow.ValidationError
	var stateErr *escrow.InvalidStateError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
	case errors.Is(err, escrow.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
	case errors.As(err, &stateErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":  stateErr.Error(),
			"status": stateErr.Status,
		})
	default:
		h.logger.Error("escrow request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ledger operation failed"})
	}
}

// pathID parses the :id path parameter. Writes a 400 and returns false on
// a malformed id.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
		return 0, false
	}
	return id, true
}

// pagination parses the limit and offset query parameters, with sane
// defaults and a hard cap on limit.
func pagination(c *gin.Context) (limit, offset int, ok bool) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return 0, 0, false
	}
	if limit > 1000 {
		limit = 1000
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
		return 0, 0, false
	}
	return limit, offset, true
}
