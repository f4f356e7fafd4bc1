package pipeline

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/contaflux/portal_backend/config"
	"github.com/contaflux/portal_backend/models"
	"github.com/contaflux/portal_backend/utils"
)

// WebhookHandler is the single ingress for all external pipeline callbacks.
// Everything answers 200; success lives in the body.
func WebhookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var env WebhookEnvelope
		if err := c.ShouldBindJSON(&env); err != nil {
			c.JSON(http.StatusOK, softFail("malformed payload"))
			return
		}
		c.JSON(http.StatusOK, DispatchWebhook(c.Request.Context(), env))
	}
}

type alignmentRunRequest struct {
	DocumentId int `json:"document_id" binding:"required"`
}

// AlignmentRunHandler is the manual/operator trigger for one document.
func AlignmentRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req alignmentRunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "document_id is required"})
			return
		}

		err := RunAlignment(c.Request.Context(), req.DocumentId, false)
		if err != nil {
			var stateErr *InvalidStateError
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			case errors.As(err, &stateErr):
				c.JSON(http.StatusConflict, gin.H{"error": stateErr.Error()})
			default:
				config.LogError(config.GetLogger(), "pipeline", "AlignmentRunHandler", "RunAlignment", req, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "alignment failed"})
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

type closingRequest struct {
	UserId      int    `json:"user_id" binding:"required"`
	Competencia string `json:"competencia" binding:"required"`
	Format      string `json:"format"`
}

func ClosingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req closingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and competencia are required"})
			return
		}

		closedBy, ok := utils.GetUserIdFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing caller identity"})
			return
		}

		result, err := CloseMonth(c.Request.Context(), req.UserId, req.Competencia, req.Format, closedBy)
		if err != nil {
			writeClosingError(c, err)
			return
		}

		status := http.StatusOK
		if result.Pending {
			status = http.StatusAccepted
		}
		c.JSON(status, result)
	}
}

func writeClosingError(c *gin.Context, err error) {
	var (
		permErr    *PermissionError
		closedErr  *AlreadyClosedError
		pendingErr *PendingDocumentsError
		emptyErr   *EmptyLedgerError
	)
	switch {
	case errors.As(err, &permErr):
		c.JSON(http.StatusForbidden, gin.H{"error": permErr.Error()})
	case errors.As(err, &closedErr):
		c.JSON(http.StatusConflict, gin.H{"error": closedErr.Error()})
	case errors.As(err, &pendingErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":     pendingErr.Error(),
			"documents": pendingErr.Documents,
		})
	case errors.As(err, &emptyErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": emptyErr.Error()})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	default:
		config.LogError(config.GetLogger(), "pipeline", "writeClosingError", "CloseMonth", nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "closing failed"})
	}
}

// ReopenClosingHandler marks a closure superseded so the period can be
// closed again. Admin-only; this is how a closure stuck in pending (verifier
// never called back) or finalized badly gets unblocked.
func ReopenClosingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		isAdmin, _ := utils.GetIsAdminFromContext(c.Request.Context())
		if !isAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "not allowed"})
			return
		}

		closureId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid closure id"})
			return
		}

		closure, err := models.GetMonthClosureById(c.Request.Context(), closureId)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "closure not found"})
			return
		}
		if err != nil {
			config.LogError(config.GetLogger(), "pipeline", "ReopenClosingHandler", "models.GetMonthClosureById", closureId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
			return
		}

		superseded, err := closure.Supersede(c.Request.Context())
		if err != nil {
			config.LogError(config.GetLogger(), "pipeline", "ReopenClosingHandler", "closure.Supersede", closureId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "reopen failed"})
			return
		}
		if !superseded {
			c.JSON(http.StatusConflict, gin.H{"error": "closure already superseded"})
			return
		}

		actorId, _ := utils.GetUserIdFromContext(c.Request.Context())
		closure.ClosedBy = actorId
		writeClosureAudit(c.Request.Context(), closure, "reopened", "")
		notify(c.Request.Context(), closure.UserId, models.NotificationTypeClosing, "Fechamento de mes",
			"Fechamento da competencia "+closure.Competencia+" foi reaberto.")
		c.JSON(http.StatusOK, gin.H{"success": true, "closure_id": closure.ID})
	}
}

// ClosingDownloadsHandler signs fresh 7-day URLs for a closure's stored
// artifacts. URLs are minted per request, never stored.
func ClosingDownloadsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		closureId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid closure id"})
			return
		}

		closure, err := models.GetMonthClosureById(c.Request.Context(), closureId)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "closure not found"})
			return
		}
		if err != nil {
			config.LogError(config.GetLogger(), "pipeline", "ClosingDownloadsHandler", "models.GetMonthClosureById", closureId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
			return
		}

		callerId, ok := utils.GetUserIdFromContext(c.Request.Context())
		isAdmin, _ := utils.GetIsAdminFromContext(c.Request.Context())
		if !ok || (!isAdmin && callerId != closure.UserId) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not allowed"})
			return
		}

		csvDownload, excelDownload := signClosureDownloads(c.Request.Context(), closure)
		c.JSON(http.StatusOK, gin.H{
			"closure_id": closure.ID,
			"csv":        csvDownload,
			"excel":      excelDownload,
		})
	}
}
