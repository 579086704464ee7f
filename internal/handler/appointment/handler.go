// Package appointment exposes appointment scheduling endpoints.
package appointment

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medicore/hospital-api/internal/handler"
	"github.com/medicore/hospital-api/internal/middleware"
	"github.com/medicore/hospital-api/internal/model"
	"github.com/medicore/hospital-api/internal/service/appointment"
)

type Handler struct {
	service *appointment.Service
	auth    *middleware.AuthMiddleware
}

func NewHandler(service *appointment.Service, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{service: service, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/appointments")
	g.Use(h.auth.Authenticate())

	g.POST("", h.auth.RequireRoles(model.RoleAdmin), h.Create)
	g.GET("/mine", h.auth.RequireRoles(model.RoleDoctor), h.ListMine)
	g.PUT("/:id/complete", h.auth.RequireRoles(model.RoleDoctor), h.Complete)
	g.GET("/:id", h.auth.RequireRoles(model.RoleAdmin, model.RoleDoctor), h.Get)
}

func (h *Handler) Create(c *gin.Context) {
	var req model.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.RespondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	apt, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.WithData(apt))
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.RespondBadRequest(c, "invalid appointment id")
		return
	}

	apt, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.WithData(apt))
}

func (h *Handler) ListMine(c *gin.Context) {
	actor, _ := middleware.PrincipalFrom(c)

	var status *model.AppointmentStatus
	if raw := c.Query("status"); raw != "" {
		s := model.AppointmentStatus(raw)
		status = &s
	}

	appointments, err := h.service.ListForDoctor(c.Request.Context(), actor, status)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.WithData(appointments))
}

func (h *Handler) Complete(c *gin.Context) {
	actor, _ := middleware.PrincipalFrom(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.RespondBadRequest(c, "invalid appointment id")
		return
	}

	apt, err := h.service.Complete(c.Request.Context(), actor, id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.WithData(apt))
}
