package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"dispatch/internal/domain"
	"dispatch/internal/repository"
	"dispatch/internal/service"
)

// RiderHandler handles HTTP requests for riders.
type RiderHandler struct {
	dispatchService *service.DispatchService
	orderService    *service.OrderService
	riderRepo       repository.RiderRepository
}

// NewRiderHandler creates a new RiderHandler.
func NewRiderHandler(dispatchService *service.DispatchService, orderService *service.OrderService, riderRepo repository.RiderRepository) *RiderHandler {
	return &RiderHandler{
		dispatchService: dispatchService,
		orderService:    orderService,
		riderRepo:       riderRepo,
	}
}

// RegisterRiderRequest is the HTTP request body for rider registration.
type RegisterRiderRequest struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	ServiceType string `json:"service_type"`
}

// RiderResponse is the HTTP response for rider data.
type RiderResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	ServiceType string `json:"service_type"`
}

// AcceptOrderRequest is the HTTP request body for accepting an order.
type AcceptOrderRequest struct {
	OrderID string `json:"order_id"`
}

// Register handles POST /v1/riders/register
func (h *RiderHandler) Register(c *gin.Context) {
	var req RegisterRiderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if req.Name == "" || req.Phone == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "name and phone are required"})
		return
	}

	serviceType := domain.ServiceType(req.ServiceType)
	if !domain.ValidServiceType(serviceType) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid service_type"})
		return
	}

	// Check if rider already exists
	existing, err := h.riderRepo.GetByPhone(c.Request.Context(), req.Phone)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		respondError(c, err)
		return
	}

	if existing != nil {
		c.JSON(http.StatusConflict, gin.H{
			"message": "Rider already registered",
			"rider":   RiderResponse{ID: existing.ID, Name: existing.Name, Phone: existing.Phone, ServiceType: string(existing.ServiceType)},
		})
		return
	}

	rider := &domain.Rider{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Phone:       req.Phone,
		ServiceType: serviceType,
		CreatedAt:   time.Now(),
	}

	if err := h.riderRepo.Create(c.Request.Context(), rider); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, RiderResponse{
		ID:          rider.ID,
		Name:        rider.Name,
		Phone:       rider.Phone,
		ServiceType: string(rider.ServiceType),
	})
}

// AcceptOrder handles POST /v1/riders/:id/accept
func (h *RiderHandler) AcceptOrder(c *gin.Context) {
	riderID := c.Param("id")

	var req AcceptOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	delivery, err := h.dispatchService.AcceptOrder(c.Request.Context(), req.OrderID, riderID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, deliveryResponse(delivery))
}

// GetEligibleOrders handles GET /v1/riders/:id/orders
//
// Returns the pending orders of the rider's service type, oldest first.
func (h *RiderHandler) GetEligibleOrders(c *gin.Context) {
	riderID := c.Param("id")

	rider, err := h.riderRepo.GetByID(c.Request.Context(), riderID)
	if err != nil {
		respondError(c, err)
		return
	}

	orders, err := h.orderService.ListEligibleOrders(c.Request.Context(), rider.ServiceType)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]OrderResponse, 0, len(orders))
	for _, order := range orders {
		response = append(response, orderResponse(order))
	}

	respondJSON(c, http.StatusOK, response)
}
