// Package billing exposes the billing engine over HTTP.
package billing

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medicore/hospital-api/internal/handler"
	"github.com/medicore/hospital-api/internal/middleware"
	"github.com/medicore/hospital-api/internal/model"
	"github.com/medicore/hospital-api/internal/service/billing"
)

type Handler struct {
	service *billing.Service
	auth    *middleware.AuthMiddleware
}

func NewHandler(service *billing.Service, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{service: service, auth: auth}
}

// RegisterRoutes mounts the billing endpoints. Every route requires a
// valid token; the role allow-lists mirror who may mutate which part of
// the bill.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/billing")
	g.Use(h.auth.Authenticate())

	g.POST("/hospital-charges", h.auth.RequireRoles(model.RoleAdmin), h.SetHospitalCharges)
	g.PUT("/:billId/finalize", h.auth.RequireRoles(model.RoleAdmin), h.Finalize)
	g.GET("/admin/pending", h.auth.RequireRoles(model.RoleAdmin), h.ListPending)
	g.GET("/admin/all", h.auth.RequireRoles(model.RoleAdmin), h.ListAll)

	g.POST("/create-manual", h.auth.RequireRoles(model.RoleAdmin, model.RoleDoctor), h.CreateManualBill)
	g.GET("/available-patients", h.auth.RequireRoles(model.RoleAdmin, model.RoleDoctor), h.AvailablePatients)
	g.GET("/:billId", h.auth.RequireRoles(model.RoleAdmin, model.RoleDoctor, model.RolePatient), h.GetBill)

	g.POST("/consultation-fee", h.auth.RequireRoles(model.RoleDoctor), h.SetConsultationFee)
	g.GET("/doctor/appointments", h.auth.RequireRoles(model.RoleDoctor), h.DoctorAppointments)

	g.GET("/patient/my-bills", h.auth.RequireRoles(model.RolePatient), h.MyBills)
}

func (h *Handler) SetHospitalCharges(c *gin.Context) {
	actor, _ := middleware.PrincipalFrom(c)

	var req model.SetHospitalChargesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.RespondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	bill, created, err := h.service.SetHospitalCharges(c.Request.Context(), actor, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	status := http.StatusOK
	message := "hospital charges updated"
	if created {
		status = http.StatusCreated
		message = "bill created with hospital charges"
	}
	c.JSON(status, handler.WithBill(message, bill))
}

func (h *Handler) SetConsultationFee(c *gin.Context) {
	actor, _ := middleware.PrincipalFrom(c)

	var req model.SetConsultationFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.RespondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	bill, created, err := h.service.SetConsultationFee(c.Request.Context(), actor, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	status := http.StatusOK
	message := "consultation fee updated"
	if created {
		status = http.StatusCreated
		message = "bill created with consultation fee"
	}
	c.JSON(status, handler.WithBill(message, bill))
}

func (h *Handler) Finalize(c *gin.Context) {
	actor, _ := middleware.PrincipalFrom(c)

	billID, err := uuid.Parse(c.Param("billId"))
	if err != nil {
		handler.RespondBadRequest(c, "invalid bill id")
		return
	}

	bill, err := h.service.Finalize(c.Request.Context(), actor, billID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.WithBill("bill finalized", bill))
}

func (h *Handler) CreateManualBill(c *gin.Context) {
	actor, _ := middleware.PrincipalFrom(c)

	var req model.CreateManualBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.RespondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	bill, err := h.service.CreateManualBill(c.Request.Context(), actor, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.WithBill("bill created", bill))
}

func (h *Handler) GetBill(c *gin.Context) {
	actor, _ := middleware.PrincipalFrom(c)

	billID, err := uuid.Parse(c.Param("billId"))
	if err != nil {
		handler.RespondBadRequest(c, "invalid bill id")
		return
	}

	bill, err := h.service.GetBill(c.Request.Context(), actor, billID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.WithBill("", bill))
}

func (h *Handler) ListPending(c *gin.Context) {
	bills, err := h.service.ListPending(c.Request.Context())
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.WithBills(bills, len(bills)))
}

func (h *Handler) ListAll(c *gin.Context) {
	var status *model.BillStatus
	if raw := c.Query("status"); raw != "" {
		s := model.BillStatus(raw)
		status = &s
	}

	bills, err := h.service.ListAll(c.Request.Context(), status)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.WithBills(bills, len(bills)))
}

func (h *Handler) MyBills(c *gin.Context) {
	actor, _ := middleware.PrincipalFrom(c)

	bills, err := h.service.ListForPatient(c.Request.Context(), actor)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.WithBills(bills, len(bills)))
}

func (h *Handler) DoctorAppointments(c *gin.Context) {
	actor, _ := middleware.PrincipalFrom(c)

	rows, err := h.service.DoctorBillingAppointments(c.Request.Context(), actor)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.WithData(rows))
}

func (h *Handler) AvailablePatients(c *gin.Context) {
	patients, err := h.service.AvailablePatients(c.Request.Context())
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.WithData(patients))
}
