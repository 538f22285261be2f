package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Nixie-Tech-LLC/medusa-player/internal/http/middleware"
)

type Error struct {
	Code    int
	Message string
}

func NewError(code int, err error) *Error {
	return &Error{Code: code, Message: err.Error()}
}

type HandlerFuncWithAuth func(ctx *gin.Context, subject string) (any, *Error)
type HandlerFunc func(ctx *gin.Context) (any, *Error)

// Controller is the gin group a Module attaches its endpoints to.
type Controller struct {
	Group *gin.RouterGroup
}

func ResolveEndpointWithAuth(h HandlerFuncWithAuth) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		subject, ok := middleware.GetSubject(ctx)
		if !ok {
			ctx.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		result, err := h(ctx, subject)
		if err != nil {
			ctx.JSON(err.Code, gin.H{"error": err.Message})
			return
		}

		ctx.JSON(http.StatusOK, result)
	}
}

func ResolveEndpoint(h HandlerFunc) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		result, err := h(ctx)
		if err != nil {
			ctx.JSON(err.Code, gin.H{"error": err.Message})
			return
		}

		ctx.JSON(http.StatusOK, result)
	}
}
