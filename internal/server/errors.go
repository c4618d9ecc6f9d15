package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yolodolo42/walletkit/internal/connect"
)

type errorBody struct {
	Kind    connect.Kind `json:"kind,omitempty"`
	Message string       `json:"message"`
}

// StatusFor maps a façade error kind to an HTTP status
func StatusFor(err error) int {
	switch connect.KindOf(err) {
	case connect.KindInvalid, connect.KindUnsupported:
		return http.StatusBadRequest
	case connect.KindRejected, connect.KindSignRejected:
		return http.StatusForbidden
	case connect.KindTimeout:
		return http.StatusGatewayTimeout
	case connect.KindUnavailable, connect.KindInProgress:
		return http.StatusConflict
	case connect.KindSubmission:
		return http.StatusBadGateway
	case connect.KindNotSupported:
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

func writeKitError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(StatusFor(err), gin.H{"error": errorBody{Kind: connect.KindOf(err), Message: err.Error()}})
}

func writeError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": errorBody{Message: err.Error()}})
}

// bind decodes a JSON body, writing 413 or 400 on failure
func bind(c *gin.Context, v any) bool {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)
	if err := c.ShouldBindJSON(v); err != nil {
		writeBodyError(c, err)
		return false
	}
	return true
}

// readBody reads the raw body under the same limit as bind
func readBody(c *gin.Context) ([]byte, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBody))
	if err != nil {
		writeBodyError(c, err)
		return nil, false
	}
	return raw, true
}

func writeBodyError(c *gin.Context, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeError(c, http.StatusRequestEntityTooLarge, err)
		return
	}
	writeError(c, http.StatusBadRequest, err)
}
