package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rongwang/library-circulation/internal/models"
)

func (h *Handler) RecordReturn(c *gin.Context) {
	var req models.RecordReturnRequest
	if !h.bindJSON(c, &req) {
		return
	}

	// The receiving agent defaults to the authenticated staff member
	if req.AgentID == "" {
		req.AgentID = c.GetString(ctxUserID)
	}

	result, err := h.service.RecordReturn(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *Handler) ListReturns(c *gin.Context) {
	returns, err := h.service.ListReturns(c.Request.Context(), models.ReturnFilter{
		LoanID: c.Query("loanId"),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ReturnListResponse{
		Status:  "success",
		Returns: returns,
	})
}

func (h *Handler) GetReturn(c *gin.Context) {
	ret, err := h.service.GetReturn(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ret)
}

func (h *Handler) CorrectReturn(c *gin.Context) {
	var req models.CorrectReturnRequest
	if !h.bindJSON(c, &req) {
		return
	}

	ret, err := h.service.CorrectReturn(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ret)
}

func (h *Handler) DeleteReturn(c *gin.Context) {
	if err := h.service.DeleteReturn(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
