package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/pxr/services/ctoken/internal/cmatrix"
	"example.com/pxr/services/ctoken/internal/services"
	"example.com/pxr/services/ctoken/internal/tracing"
)

// defaultOperator is recorded on audit columns when the caller does not
// identify itself.
const defaultOperator = "system"

// CTokenHandler handles Local-CToken submission requests
type CTokenHandler struct {
	ctokenService *services.CTokenService
	tracer        tracing.Tracer
}

// NewCTokenHandler creates a new Local-CToken handler
func NewCTokenHandler(ctokenService *services.CTokenService, tracer tracing.Tracer) *CTokenHandler {
	return &CTokenHandler{
		ctokenService: ctokenService,
		tracer:        tracer,
	}
}

// HandleStoreSubmission accepts a submission with add, update and delete
// CMatrix channels and persists it as unsent rows.
func (h *CTokenHandler) HandleStoreSubmission(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-store-local-ctoken")
	defer h.tracer.EndTransaction(txn)

	var req cmatrix.Submission
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error().Err(err).Msg("Invalid request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	h.tracer.AddAttribute(txn, "add_count", len(req.Add))
	h.tracer.AddAttribute(txn, "update_count", len(req.Update))
	h.tracer.AddAttribute(txn, "delete_count", len(req.Delete))

	operator := c.GetHeader("X-Operator")
	if operator == "" {
		operator = defaultOperator
	}

	if err := h.ctokenService.StoreSubmission(c, &req, operator); err != nil {
		log.Error().Err(err).Msg("Failed to store submission")
		c.JSON(statusForServiceError(err), gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": "success"})
}

// RegisterRoutes registers the handler's routes
func (h *CTokenHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/local-ctoken", h.HandleStoreSubmission)
}

// statusForServiceError maps a service error to an HTTP status code.
func statusForServiceError(err error) int {
	var svcErr *services.ServiceError
	if !errors.As(err, &svcErr) {
		return http.StatusInternalServerError
	}
	switch svcErr.Kind {
	case services.KindLedgerRejected:
		return http.StatusBadRequest
	case services.KindLedgerUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
