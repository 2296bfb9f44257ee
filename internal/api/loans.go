package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rongwang/library-circulation/internal/models"
)

func (h *Handler) OpenLoan(c *gin.Context) {
	var req models.OpenLoanRequest
	if !h.bindJSON(c, &req) {
		return
	}

	// The issuing agent defaults to the authenticated staff member
	if req.AgentID == "" {
		req.AgentID = c.GetString(ctxUserID)
	}

	loan, err := h.service.OpenLoan(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, loan)
}

func (h *Handler) ListLoans(c *gin.Context) {
	filter := models.LoanFilter{
		Status:     models.LoanStatus(c.Query("status")),
		BorrowerID: c.Query("borrowerId"),
	}

	if v := c.Query("overdueOnly"); v != "" {
		overdueOnly, err := strconv.ParseBool(v)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", "overdueOnly must be true or false")
			return
		}
		filter.OverdueOnly = overdueOnly
	}

	if v := c.Query("asOf"); v != "" {
		asOf, err := models.ParseDate(v)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}
		filter.AsOf = asOf
	}

	loans, err := h.service.ListLoans(c.Request.Context(), callerFrom(c), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.LoanListResponse{
		Status: "success",
		Loans:  loans,
	})
}

func (h *Handler) GetLoan(c *gin.Context) {
	loan, err := h.service.GetLoan(c.Request.Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, loan)
}

func (h *Handler) CancelLoan(c *gin.Context) {
	loan, err := h.service.CancelLoan(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, loan)
}

func (h *Handler) DeleteLoan(c *gin.Context) {
	if err := h.service.DeleteLoan(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *Handler) GetReturnByLoan(c *gin.Context) {
	ret, err := h.service.GetReturnByLoan(c.Request.Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ret)
}
