package handlers

import (
	"net/http"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// apology renders the error page and stops the chain.
func (h *Handler) apology(c *gin.Context, code int, message string) {
	h.render(c, code, "apology.html", "Apology", gin.H{
		"Code":    code,
		"Message": message,
	})
	c.Abort()
}

// internalError logs err and shows a generic 500. Nothing from err reaches the user.
func (h *Handler) internalError(c *gin.Context, err error) {
	h.log.Error("request failed",
		zap.Error(err),
		zap.String("request_id", requestid.Get(c)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path))

	h.apology(c, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

// Recover turns a panic into a 500 apology.
func (h *Handler) Recover(c *gin.Context, recovered any) {
	h.log.Error("panic recovered",
		zap.Any("panic", recovered),
		zap.String("request_id", requestid.Get(c)),
		zap.String("path", c.Request.URL.Path),
		zap.Stack("stack"))

	h.apology(c, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

// NotFound renders the 404 apology for unknown routes.
func (h *Handler) NotFound(c *gin.Context) {
	h.apology(c, http.StatusNotFound, http.StatusText(http.StatusNotFound))
}

// MethodNotAllowed renders the 405 apology.
func (h *Handler) MethodNotAllowed(c *gin.Context) {
	h.apology(c, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
}
