package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/planwell/calendar-sync/internal/domain"
	"github.com/planwell/calendar-sync/internal/dto"
	"github.com/planwell/calendar-sync/internal/repository"
	"github.com/planwell/calendar-sync/internal/service"
)

// SyncHandler exposes the calendar connection surface: status, connect,
// disconnect, pause/resume and manual sync triggers
type SyncHandler struct {
	creds    *service.CredentialService
	enqueuer service.Enqueuer
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(creds *service.CredentialService, enqueuer service.Enqueuer) *SyncHandler {
	return &SyncHandler{creds: creds, enqueuer: enqueuer}
}

// Status returns the credential health surface for the authenticated user
func (h *SyncHandler) Status(c *gin.Context) {
	userID := c.GetString("user_id")

	cred, err := h.creds.Status(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusOK, dto.StatusResponse{Connected: false})
			return
		}
		internalError(c, err)
		return
	}

	resp := dto.StatusResponse{
		Connected:    true,
		Status:       string(cred.Status),
		AccountEmail: cred.AccountEmail,
		LastError:    cred.LastError,
	}
	if cred.LastSyncAt != nil {
		lastSync := cred.LastSyncAt.Format(time.RFC3339)
		resp.LastSyncAt = &lastSync
	}

	c.JSON(http.StatusOK, resp)
}

// Connect exchanges an authorization code and enqueues the initial full sync
func (h *SyncHandler) Connect(c *gin.Context) {
	userID := c.GetString("user_id")

	var req dto.ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "code and account_email are required")
		return
	}

	if _, err := h.creds.Connect(c.Request.Context(), userID, req.AccountEmail, req.Code); err != nil {
		c.JSON(http.StatusBadGateway, dto.ErrorResponse{
			Error:   "Bad Gateway",
			Message: "Failed to connect calendar account",
		})
		return
	}

	if err := h.enqueuer.EnqueueFullSync(c.Request.Context(), userID, 0, 0); err != nil {
		// The connection stands; periodic reconciliation will pick it up
		c.JSON(http.StatusCreated, dto.SuccessResponse{Message: "Calendar connected, sync pending"})
		return
	}

	c.JSON(http.StatusCreated, dto.SuccessResponse{Message: "Calendar connected"})
}

// Disconnect removes the credential and the user's mapping ledger
func (h *SyncHandler) Disconnect(c *gin.Context) {
	userID := c.GetString("user_id")

	if err := h.creds.Disconnect(c.Request.Context(), userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			notFound(c, "No calendar connection")
			return
		}
		internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{Message: "Calendar disconnected"})
}

// Pause suspends syncing for the user
func (h *SyncHandler) Pause(c *gin.Context) {
	h.setPaused(c, true)
}

// Resume reactivates syncing for the user
func (h *SyncHandler) Resume(c *gin.Context) {
	h.setPaused(c, false)
}

func (h *SyncHandler) setPaused(c *gin.Context, paused bool) {
	userID := c.GetString("user_id")

	var err error
	if paused {
		err = h.creds.Pause(c.Request.Context(), userID)
	} else {
		err = h.creds.Resume(c.Request.Context(), userID)
	}

	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			notFound(c, "No calendar connection")
			return
		}
		internalError(c, err)
		return
	}

	message := "Calendar sync resumed"
	if paused {
		message = "Calendar sync paused"
	}
	c.JSON(http.StatusOK, dto.SuccessResponse{Message: message})
}

// TriggerSync enqueues a manual sync: full by default, targeted when the
// request names an entity
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	userID := c.GetString("user_id")

	var req dto.SyncTriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		badRequest(c, "invalid request body")
		return
	}

	ctx := c.Request.Context()
	var err error
	if req.EntityKind == "" || req.Full {
		err = h.enqueuer.EnqueueFullSync(ctx, userID, 0, 0)
	} else {
		var ref domain.EntityRef
		ref, err = domain.NewEntityRef(domain.EntityKind(req.EntityKind), req.EntityID)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		err = h.enqueuer.EnqueueEntitySync(ctx, userID, ref, false, 0, 0)
	}

	if err != nil {
		internalError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.SuccessResponse{Message: "Sync scheduled"})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{
		Error:   "Bad Request",
		Message: message,
	})
}

func notFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, dto.ErrorResponse{
		Error:   "Not Found",
		Message: message,
	})
}

func internalError(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
		Error:   "Internal Server Error",
		Message: "Something went wrong",
	})
}
