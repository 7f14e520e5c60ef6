package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/api/wire"
)

const contentTypeJSON = "application/json; charset=utf-8"

// status maps an error to its HTTP status code
func status(err error) int {
	switch wire.KindOf(err) {
	case wire.KindExhausted:
		return http.StatusInsufficientStorage
	case wire.KindInvalid:
		return http.StatusBadRequest
	case wire.KindNotFound:
		return http.StatusNotFound
	case wire.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// respond writes v encoded with the wire codec
func respond(c *gin.Context, code int, v any) {
	data, err := wire.API.Marshal(v)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"code":    "internal",
			"error":   err.Error(),
		})
		return
	}
	c.Data(code, contentTypeJSON, data)
}

// fail writes the error body for err and records it on the context
func (h *Handlers) fail(c *gin.Context, err error) {
	code := status(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", wire.Code(err)),
			zap.Error(err),
		)
	} else {
		h.logger.Debug("request rejected",
			zap.String("path", c.FullPath()),
			zap.String("code", wire.Code(err)),
			zap.Error(err),
		)
	}
	_ = c.Error(err)
	respond(c, code, wire.NewError(err))
	c.Abort()
}

// bind decodes the JSON body into v
func bind(c *gin.Context, v any) error {
	data, err := c.GetRawData()
	if err != nil {
		return fmt.Errorf("%w: %w", wire.ErrBadRequest, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: empty body", wire.ErrBadRequest)
	}
	if err := wire.API.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", wire.ErrBadRequest, err)
	}
	return nil
}
