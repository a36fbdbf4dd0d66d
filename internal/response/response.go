package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the envelope every /api endpoint returns
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success wraps data in a successful envelope
func Success(data interface{}) Response {
	return Response{
		Success: true,
		Message: "success",
		Data:    data,
	}
}

// Error builds a failed envelope
func Error(message string) Response {
	return Response{
		Success: false,
		Message: message,
	}
}

// Outcome reports a finished operation. success mirrors whether the outcome
// was a success; the message carries the outcome name.
func Outcome(success bool, message string, data interface{}) Response {
	return Response{
		Success: success,
		Message: message,
		Data:    data,
	}
}

// SuccessJSON sends a 200 success envelope
func SuccessJSON(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Success(data))
}

// ErrorJSON sends an error envelope with statusCode
func ErrorJSON(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Error(message))
}

// AbortJSON sends an error envelope and stops the handler chain
func AbortJSON(c *gin.Context, statusCode int, message string) {
	c.AbortWithStatusJSON(statusCode, Error(message))
}
