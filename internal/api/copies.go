package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rongwang/library-circulation/internal/models"
)

func (h *Handler) RegisterCopy(c *gin.Context) {
	var req models.RegisterCopyRequest
	if !h.bindJSON(c, &req) {
		return
	}

	cp, err := h.service.RegisterCopy(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, cp)
}

func (h *Handler) GetCopy(c *gin.Context) {
	cp, err := h.service.GetCopy(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, cp)
}
