package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/evoengine/evoengine/pkg/store"
)

// writeStoreError maps a store error to the right HTTP status.
func writeStoreError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	slog.Error("unexpected store error", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
