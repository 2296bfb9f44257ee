package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rongwang/library-circulation/internal/models"
)

// parseFineFilter accepts paid=true|false or the paidOnly / unpaidOnly flags
func parseFineFilter(c *gin.Context) (models.FineFilter, error) {
	filter := models.FineFilter{UserID: c.Query("userId")}

	flags := []struct {
		name  string
		value bool
	}{
		{"paid", true},
		{"paidOnly", true},
		{"unpaidOnly", false},
	}

	for _, f := range flags {
		raw := c.Query(f.name)
		if raw == "" {
			continue
		}

		set, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, errors.New(f.name + " must be true or false")
		}

		var paid bool
		switch f.name {
		case "paid":
			paid = set
		default:
			if !set {
				continue
			}
			paid = f.value
		}

		if filter.Paid != nil && *filter.Paid != paid {
			return filter, errors.New("conflicting paid filters")
		}
		filter.Paid = &paid
	}

	return filter, nil
}

func (h *Handler) ListFines(c *gin.Context) {
	filter, err := parseFineFilter(c)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	fines, err := h.service.ListFines(c.Request.Context(), callerFrom(c), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.FineListResponse{
		Status: "success",
		Fines:  fines,
	})
}

func (h *Handler) CreateFine(c *gin.Context) {
	var req models.CreateFineRequest
	if !h.bindJSON(c, &req) {
		return
	}

	fine, err := h.service.CreateManualFine(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, fine)
}

func (h *Handler) GetFine(c *gin.Context) {
	fine, err := h.service.GetFine(c.Request.Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, fine)
}

func (h *Handler) MarkPaid(c *gin.Context) {
	// The body is optional; an empty one means "paid today"
	var req models.MarkPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	fine, err := h.service.MarkPaid(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, fine)
}

func (h *Handler) MarkUnpaid(c *gin.Context) {
	fine, err := h.service.MarkUnpaid(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, fine)
}

func (h *Handler) TotalOwed(c *gin.Context) {
	total, err := h.service.TotalOwed(c.Request.Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, total)
}

func (h *Handler) DeleteFine(c *gin.Context) {
	if err := h.service.DeleteFine(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
