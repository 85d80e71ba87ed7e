package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"example.com/pxr/services/ctoken/internal/services"
	"example.com/pxr/services/ctoken/internal/tracing"
)

// LedgerHandler handles ledger forwarding HTTP requests
type LedgerHandler struct {
	ledgerService *services.LedgerService
	tracer        tracing.Tracer
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(ledgerService *services.LedgerService, tracer tracing.Tracer) *LedgerHandler {
	return &LedgerHandler{
		ledgerService: ledgerService,
		tracer:        tracer,
	}
}

// ForwardRequest selects the window of unsent rows to forward.
type ForwardRequest struct {
	Offset *int `json:"offset" binding:"required,min=0"`
	Count  *int `json:"count" binding:"required,min=1,max=1000"`
}

// HandleForwardBatch forwards one window of unsent rows to the ledger.
func (h *LedgerHandler) HandleForwardBatch(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-forward-ledger")
	defer h.tracer.EndTransaction(txn)

	var req ForwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error().Err(err).Msg("Invalid request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	h.tracer.AddAttribute(txn, "offset", *req.Offset)
	h.tracer.AddAttribute(txn, "count", *req.Count)

	operator := c.GetHeader("X-Operator")
	if operator == "" {
		operator = defaultOperator
	}

	if err := h.ledgerService.ForwardBatch(c, *req.Offset, *req.Count, operator); err != nil {
		log.Error().Err(err).Msg("Failed to forward ledger batch")
		c.JSON(statusForServiceError(err), gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": "success"})
}

// HandleGetUnsentCount returns the number of rows awaiting forwarding.
func (h *LedgerHandler) HandleGetUnsentCount(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-ledger-count")
	defer h.tracer.EndTransaction(txn)

	count, err := h.ledgerService.UnsentCount(c)
	if err != nil {
		log.Error().Err(err).Msg("Failed to count unsent rows")
		c.JSON(statusForServiceError(err), gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

// RegisterRoutes registers the handler's routes
func (h *LedgerHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/local-ctoken/ledger", h.HandleForwardBatch)
	router.GET("/local-ctoken/ledger/count", h.HandleGetUnsentCount)
}
