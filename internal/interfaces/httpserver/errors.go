package httpserver

import (
	"github.com/gin-gonic/gin"

	"openresponses.ai/gateway/internal/domain/apierror"
)

type errorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// writeError maps a domain error onto the wire envelope
// {"error":{type,message,code}} with its HTTP status.
func writeError(c *gin.Context, err error) {
	apiErr := apierror.FromError(err)
	c.AbortWithStatusJSON(apiErr.HTTPStatus(), errorEnvelope{Error: errorBody{
		Type:    string(apiErr.Kind),
		Message: apiErr.Message,
		Code:    apiErr.Code,
	}})
}
