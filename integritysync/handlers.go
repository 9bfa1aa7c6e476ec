package integritysync

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mmdatafocus/vehicle_integrity/config"
	"github.com/mmdatafocus/vehicle_integrity/models"
	"github.com/mmdatafocus/vehicle_integrity/registry"
	"github.com/mmdatafocus/vehicle_integrity/utils"
)

type ScoreDocumentRequest struct {
	Vin             string         `json:"vin" binding:"required"`
	ExtractedFields map[string]any `json:"extractedFields" binding:"required"`
}

// RegisterRoutes mounts the engine's endpoints on r.
func RegisterRoutes(r gin.IRouter, e *Engine) {
	r.POST("/api/integrity/sync", TriggerSyncHandler(e))
	r.GET("/api/integrity/vehicles/:vin", CheckVehicleHandler(e))
	r.POST("/api/documents/score", ScoreDocumentHandler(e))
	r.POST("/api/registry/lookup", RegistryLookupHandler(e))
	r.POST("/pubsub/integrity-sync", PubSubPushHandler(e))
}

// TriggerSyncHandler runs a full sync and returns the SyncRun.
// With ?async=true it starts the run in the background and returns 202.
func TriggerSyncHandler(e *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := utils.SetTriggeredByInContext(c.Request.Context(), "api")

		if strings.EqualFold(c.Query("async"), "true") {
			start, err := e.ReserveFullSync(ctx)
			if errors.Is(err, ErrSyncInProgress) {
				c.JSON(http.StatusConflict, models.SyncRun{Success: false, Error: SyncInProgressMessage})
				return
			}
			if err != nil {
				c.JSON(http.StatusInternalServerError, models.SyncRun{Success: false, Error: err.Error()})
				return
			}
			cid, _ := utils.GetCorrelationIdFromContext(ctx)
			if cid == "" {
				cid = uuid.NewString()
				ctx = utils.SetCorrelationIdInContext(ctx, cid)
			}
			go func() {
				if _, err := start(context.WithoutCancel(ctx)); err != nil {
					config.LogError(nil, "integritysync/handlers.go", "TriggerSyncHandler", "background sync", cid, err)
				}
			}()
			c.JSON(http.StatusAccepted, gin.H{"status": "started", "correlationId": cid})
			return
		}

		run, err := e.RunFullSync(ctx)
		switch {
		case errors.Is(err, ErrSyncInProgress):
			c.JSON(http.StatusConflict, run)
		case err != nil:
			c.JSON(http.StatusInternalServerError, run)
		default:
			c.JSON(http.StatusOK, run)
		}
	}
}

func CheckVehicleHandler(e *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		vin := strings.TrimSpace(c.Param("vin"))
		res, err := e.CheckIntegrityByVin(c.Request.Context(), vin)
		if errors.Is(err, utils.ErrorRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "vehicle not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func ScoreDocumentHandler(e *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ScoreDocumentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "vin and extractedFields are required"})
			return
		}

		ext := models.DecodeOCRExtraction(req.ExtractedFields)
		verdict, err := e.ScoreDocumentForVin(c.Request.Context(), ext, req.Vin)
		if errors.Is(err, utils.ErrorRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "vehicle not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, verdict)
	}
}

func RegistryLookupHandler(e *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registry.LookupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		req.RegistryType = models.RegistryType(strings.ToUpper(strings.TrimSpace(string(req.RegistryType))))

		res, err := e.LookupExternalRegistry(c.Request.Context(), req)
		var verrs validator.ValidationErrors
		switch {
		case errors.As(err, &verrs):
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": utils.ProcessValidationErrors(verrs)})
		case errors.Is(err, utils.ErrorInvalidIdentifiers):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case err != nil:
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusOK, res)
		}
	}
}
