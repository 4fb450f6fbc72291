package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/user/hsafe/internal/rules"
	"github.com/user/hsafe/internal/topology"
	"github.com/user/hsafe/internal/util"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Code    int         `json:"code"`
}

// FieldError names the rejected field of a validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		util.WithFields(log.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"latency_ms": time.Since(start).Milliseconds(),
		}).Debug("API request")
	}
}

func abort(c *gin.Context, code int, kind, message string, details interface{}) {
	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:   kind,
		Message: message,
		Details: details,
		Code:    code,
	})
}

func badRequest(c *gin.Context, message string, err error) {
	abort(c, http.StatusBadRequest, "bad_request", message, err.Error())
}

// respondError maps a domain error to its status code.
func respondError(c *gin.Context, message string, err error) {
	var verr *rules.ValidationError
	switch {
	case errors.As(err, &verr):
		abort(c, http.StatusBadRequest, "validation_error", message,
			FieldError{Field: verr.Field, Message: verr.Message})
	case errors.Is(err, rules.ErrRuleNotFound),
		errors.Is(err, topology.ErrNodeNotFound),
		errors.Is(err, topology.ErrEdgeNotFound):
		abort(c, http.StatusNotFound, "not_found", message, err.Error())
	case errors.Is(err, topology.ErrInvalidLink),
		errors.Is(err, topology.ErrDuplicateNode):
		abort(c, http.StatusConflict, "conflict", message, err.Error())
	case errors.Is(err, topology.ErrInvalidNodeType),
		errors.Is(err, topology.ErrInvalidAddress),
		errors.Is(err, topology.ErrReservedID):
		abort(c, http.StatusBadRequest, "validation_error", message, err.Error())
	default:
		util.Error("%s: %v", message, err)
		abort(c, http.StatusInternalServerError, "internal_error", message, err.Error())
	}
}
