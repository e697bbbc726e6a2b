package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/service"
)

// DeliveryHandler handles HTTP requests for delivery progress.
type DeliveryHandler struct {
	deliveryService *service.DeliveryService
}

// NewDeliveryHandler creates a new DeliveryHandler.
func NewDeliveryHandler(deliveryService *service.DeliveryService) *DeliveryHandler {
	return &DeliveryHandler{deliveryService: deliveryService}
}

// GetDelivery handles GET /v1/deliveries/:id
func (h *DeliveryHandler) GetDelivery(c *gin.Context) {
	delivery, err := h.deliveryService.GetDelivery(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, deliveryResponse(delivery))
}

// MarkPreparing handles POST /v1/orders/:id/preparing
func (h *DeliveryHandler) MarkPreparing(c *gin.Context) {
	order, err := h.deliveryService.MarkPreparing(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, orderResponse(order))
}

// MarkPickedUp handles POST /v1/deliveries/:id/pickup
func (h *DeliveryHandler) MarkPickedUp(c *gin.Context) {
	delivery, err := h.deliveryService.MarkPickedUp(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, deliveryResponse(delivery))
}

// MarkInTransit handles POST /v1/deliveries/:id/transit
func (h *DeliveryHandler) MarkInTransit(c *gin.Context) {
	delivery, err := h.deliveryService.MarkInTransit(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, deliveryResponse(delivery))
}

// MarkDelivered handles POST /v1/deliveries/:id/delivered
func (h *DeliveryHandler) MarkDelivered(c *gin.Context) {
	delivery, err := h.deliveryService.MarkDelivered(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, deliveryResponse(delivery))
}

// Complete handles POST /v1/deliveries/:id/complete
func (h *DeliveryHandler) Complete(c *gin.Context) {
	delivery, err := h.deliveryService.CompleteOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, deliveryResponse(delivery))
}
