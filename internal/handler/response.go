// Package handler holds the response envelope shared by all HTTP handlers.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/medicore/hospital-api/pkg/errors"
)

// Response is the envelope every endpoint returns. Exactly one of Bill
// and Bills is set on billing reads.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Bill    interface{} `json:"bill,omitempty"`
	Bills   interface{} `json:"bills,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Count   *int        `json:"count,omitempty"`
}

func WithBill(message string, bill interface{}) Response {
	return Response{Success: true, Message: message, Bill: bill}
}

func WithBills(bills interface{}, count int) Response {
	return Response{Success: true, Bills: bills, Count: &count}
}

func WithData(data interface{}) Response {
	return Response{Success: true, Data: data}
}

// RespondError maps application errors to their HTTP status; anything
// else is a 500 with a generic message.
func RespondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		c.JSON(appErr.HTTPStatus(), Response{Success: false, Message: appErr.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, Response{Success: false, Message: "internal server error"})
}

func RespondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Message: message})
}
