package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/dataflow/models"
)

// Assembler builds a video from stills.
type Assembler interface {
	Assemble(ctx context.Context, req models.AssembleRequest) (string, error)
}

// Assemble returns a handler for POST /api/v1/assemble.
func Assemble(asm Assembler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.AssembleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}

		path, err := asm.Assemble(c.Request.Context(), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.AssembleResponse{
			Success: true,
			Path:    path,
			URI:     "file://" + path,
		})
	}
}
