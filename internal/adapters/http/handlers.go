package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/stagioo/Call-sub001/internal/adapters/signal"
	"github.com/stagioo/Call-sub001/internal/app/orch"
	"github.com/stagioo/Call-sub001/internal/domain"
)

type callHandlers struct {
	orch         *orch.Orchestrator
	pollInterval time.Duration
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type createCallResponse struct {
	ID      domain.RoomID `json:"id"`
	Creator domain.UserID `json:"creator"`
}

type checkAccessResponse struct {
	HasAccess      bool  `json:"hasAccess"`
	IsCreator      bool  `json:"isCreator"`
	PollIntervalMs int64 `json:"pollIntervalMs"`
}

type requestJoinResponse struct {
	RoomID    domain.RoomID        `json:"roomId"`
	Status    domain.RequestStatus `json:"status"`
	CreatedAt time.Time            `json:"createdAt"`
}

type decideRequest struct {
	RequesterID domain.UserID `json:"requesterId" binding:"required"`
}

type decideResponse struct {
	Request domain.JoinRequest `json:"request"`
	Stale   bool               `json:"stale,omitempty"`
}

// statusFor maps the error taxonomy onto HTTP.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidMessage):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotAuthorized), errors.Is(err, domain.ErrAccessDenied), errors.Is(err, domain.ErrNotMember):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrRoomNotFound), errors.Is(err, domain.ErrRequestNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyMember), errors.Is(err, domain.ErrRoomFullOrClosed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrCreatorStoreError):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrMediaEngine):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Warn().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error(), Code: domain.Code(err)})
}

func callerID(c *gin.Context) domain.UserID {
	return domain.UserID(c.GetString(signal.CtxUserID))
}

func roomParam(c *gin.Context) domain.RoomID {
	return domain.RoomID(c.Param("id"))
}

func (h *callHandlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"rooms":    h.orch.Rooms.Count(),
		"sessions": h.orch.Sessions.Count(),
	})
}

func (h *callHandlers) createCall(c *gin.Context) {
	user := callerID(c)
	id, err := h.orch.Access.CreateCall(c.Request.Context(), user)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, createCallResponse{ID: id, Creator: user})
}

func (h *callHandlers) checkAccess(c *gin.Context) {
	res, err := h.orch.Access.CheckAccess(c.Request.Context(), roomParam(c), callerID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, checkAccessResponse{
		HasAccess:      res.HasAccess,
		IsCreator:      res.IsCreator,
		PollIntervalMs: h.pollInterval.Milliseconds(),
	})
}

func (h *callHandlers) creator(c *gin.Context) {
	creator, ok, err := h.orch.Access.Creator(c.Request.Context(), roomParam(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if !ok {
		abortWithError(c, domain.ErrRoomNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"creator": creator})
}

func (h *callHandlers) requestJoin(c *gin.Context) {
	user := callerID(c)
	if h.orch.Limiter != nil && !h.orch.Limiter.Allow(user) {
		abortWithError(c, domain.ErrRateLimited)
		return
	}
	req, err := h.orch.Access.RequestJoin(c.Request.Context(), roomParam(c), user)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, requestJoinResponse{RoomID: req.RoomID, Status: req.Status, CreatedAt: req.CreatedAt})
}

func (h *callHandlers) decide(d domain.Decision) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body decideRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			abortWithError(c, domain.ErrInvalidMessage)
			return
		}
		res, err := h.orch.Access.Decide(c.Request.Context(), roomParam(c), body.RequesterID, d, callerID(c))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, decideResponse{Request: res.Request, Stale: res.Stale})
	}
}

func (h *callHandlers) pending(c *gin.Context) {
	reqs, err := h.orch.Access.Pending(c.Request.Context(), roomParam(c), callerID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

func (h *callHandlers) participants(c *gin.Context) {
	room := roomParam(c)
	res, err := h.orch.Access.CheckAccess(c.Request.Context(), room, callerID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if !res.HasAccess {
		abortWithError(c, domain.ErrAccessDenied)
		return
	}
	info, ok := h.orch.Rooms.Info(room)
	if !ok {
		abortWithError(c, domain.ErrRoomNotFound)
		return
	}
	participants := h.orch.Rooms.ListOthers(room, "")
	if participants == nil {
		participants = []domain.Participant{}
	}
	c.JSON(http.StatusOK, gin.H{
		"roomId":       room,
		"hostId":       info.Host,
		"participants": participants,
	})
}

func (h *callHandlers) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.orch.Rooms.List()})
}

func (h *callHandlers) evictRoom(c *gin.Context) {
	if err := h.orch.Presence.EvictRoom(c.Request.Context(), roomParam(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
