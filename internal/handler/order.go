package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"dispatch/internal/domain"
	"dispatch/internal/repository"
	"dispatch/internal/service"
)

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	orderService *service.OrderService
	deliveryRepo repository.DeliveryRepository
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderService *service.OrderService, deliveryRepo repository.DeliveryRepository) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		deliveryRepo: deliveryRepo,
	}
}

// CreateOrderRequest is the HTTP request body for creating an order.
type CreateOrderRequest struct {
	CustomerID      string `json:"customer_id"`
	ServiceType     string `json:"service_type"`
	PickupAddress   string `json:"pickup_address"`
	DeliveryAddress string `json:"delivery_address,omitempty"`
	Description     string `json:"description,omitempty"`
	ReceiverName    string `json:"receiver_name,omitempty"`
	ReceiverPhone   string `json:"receiver_phone,omitempty"`
	BaseAmount      string `json:"base_amount,omitempty"`
}

// CancelOrderRequest is the HTTP request body for cancelling an order.
type CancelOrderRequest struct {
	CancelledBy string `json:"cancelled_by"`
}

// OrderResponse is the HTTP representation of an order.
type OrderResponse struct {
	ID              string `json:"id"`
	Number          string `json:"number"`
	CustomerID      string `json:"customer_id"`
	ServiceType     string `json:"service_type"`
	PickupAddress   string `json:"pickup_address"`
	DeliveryAddress string `json:"delivery_address,omitempty"`
	Description     string `json:"description,omitempty"`
	ReceiverName    string `json:"receiver_name,omitempty"`
	ReceiverPhone   string `json:"receiver_phone,omitempty"`
	ServiceFee      string `json:"service_fee"`
	BaseAmount      string `json:"base_amount"`
	Total           string `json:"total"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
}

// DeliveryResponse is the HTTP representation of a delivery.
type DeliveryResponse struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	RiderID     string `json:"rider_id"`
	IsPickedUp  bool   `json:"is_picked_up"`
	IsCompleted bool   `json:"is_completed"`
	Status      string `json:"status"`
	Earnings    string `json:"earnings"`
}

// GetOrderResponse is the HTTP response for getting an order, with its
// delivery embedded once a rider has accepted.
type GetOrderResponse struct {
	OrderResponse
	Delivery *DeliveryResponse `json:"delivery,omitempty"`
}

func orderResponse(order *domain.Order) OrderResponse {
	return OrderResponse{
		ID:              order.ID,
		Number:          order.Number,
		CustomerID:      order.CustomerID,
		ServiceType:     string(order.ServiceType),
		PickupAddress:   order.PickupAddress,
		DeliveryAddress: order.DeliveryAddress,
		Description:     order.Description,
		ReceiverName:    order.ReceiverName,
		ReceiverPhone:   order.ReceiverPhone,
		ServiceFee:      order.ServiceFee.StringFixed(2),
		BaseAmount:      order.BaseAmount.StringFixed(2),
		Total:           order.Total.StringFixed(2),
		Status:          string(order.Status),
		CreatedAt:       order.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func deliveryResponse(delivery *domain.Delivery) *DeliveryResponse {
	return &DeliveryResponse{
		ID:          delivery.ID,
		OrderID:     delivery.OrderID,
		RiderID:     delivery.RiderID,
		IsPickedUp:  delivery.IsPickedUp,
		IsCompleted: delivery.IsCompleted,
		Status:      string(delivery.Status),
		Earnings:    delivery.Earnings.StringFixed(2),
	}
}

// CreateOrder handles POST /v1/orders
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	baseAmount := decimal.Zero
	if req.BaseAmount != "" {
		parsed, err := decimal.NewFromString(req.BaseAmount)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid base_amount"})
			return
		}
		baseAmount = parsed
	}

	order, err := h.orderService.CreateOrder(c.Request.Context(), service.CreateOrderRequest{
		CustomerID:      req.CustomerID,
		ServiceType:     domain.ServiceType(req.ServiceType),
		PickupAddress:   req.PickupAddress,
		DeliveryAddress: req.DeliveryAddress,
		Description:     req.Description,
		ReceiverName:    req.ReceiverName,
		ReceiverPhone:   req.ReceiverPhone,
		BaseAmount:      baseAmount,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, orderResponse(order))
}

// GetOrder handles GET /v1/orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	orderID := c.Param("id")

	order, err := h.orderService.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	response := GetOrderResponse{OrderResponse: orderResponse(order)}

	delivery, err := h.deliveryRepo.GetByOrderID(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	if delivery != nil {
		response.Delivery = deliveryResponse(delivery)
	}

	respondJSON(c, http.StatusOK, response)
}

// CancelOrder handles POST /v1/orders/:id/cancel
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	orderID := c.Param("id")

	var req CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	err := h.orderService.CancelOrder(c.Request.Context(), service.CancelOrderRequest{
		OrderID:     orderID,
		CancelledBy: req.CancelledBy,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
