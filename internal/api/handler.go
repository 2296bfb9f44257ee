package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rongwang/library-circulation/internal/models"
	"github.com/rongwang/library-circulation/internal/service"
	"github.com/rongwang/library-circulation/internal/utils"
)

// Handler handles HTTP requests
type Handler struct {
	service service.Service
	logger  *utils.Logger
}

// NewHandler creates a new Handler
func NewHandler(svc service.Service, logger *utils.Logger) *Handler {
	if logger == nil {
		logger = utils.Discard()
	}
	return &Handler{
		service: svc,
		logger:  logger,
	}
}

// SetupRoutes configures the API routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)

	// Public routes
	auth := router.Group("/api/auth")
	{
		auth.POST("/signup", h.SignUp)
		auth.POST("/login", h.Login)
	}

	// Protected routes
	api := router.Group("/api")
	api.Use(AuthMiddleware())

	staff := RequireRole(models.RoleAdmin, models.RoleLibrarian)
	admin := RequireRole(models.RoleAdmin)

	loans := api.Group("/loans")
	{
		loans.POST("", staff, h.OpenLoan)
		loans.GET("", h.ListLoans)
		loans.GET("/:id", h.GetLoan)
		loans.POST("/:id/cancel", staff, h.CancelLoan)
		loans.DELETE("/:id", admin, h.DeleteLoan)
		loans.GET("/:id/return", h.GetReturnByLoan)
	}

	returns := api.Group("/returns", staff)
	{
		returns.POST("", h.RecordReturn)
		returns.GET("", h.ListReturns)
		returns.GET("/:id", h.GetReturn)
		returns.PATCH("/:id", h.CorrectReturn)
		returns.DELETE("/:id", admin, h.DeleteReturn)
	}

	fines := api.Group("/fines")
	{
		fines.GET("", h.ListFines)
		fines.POST("", staff, h.CreateFine)
		fines.GET("/:id", h.GetFine)
		fines.POST("/:id/pay", staff, h.MarkPaid)
		fines.POST("/:id/unpay", staff, h.MarkUnpaid)
		fines.DELETE("/:id", admin, h.DeleteFine)
	}

	api.GET("/users/:id/fines/total", h.TotalOwed)

	copies := api.Group("/copies")
	{
		copies.POST("", admin, h.RegisterCopy)
		copies.GET("/:id", h.GetCopy)
	}
}

// Health reports that the server is up
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Authentication handlers
func (h *Handler) SignUp(c *gin.Context) {
	var req models.SignUpRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.service.SignUp(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
