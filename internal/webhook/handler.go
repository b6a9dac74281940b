// Package webhook implements the two storefront-facing intake endpoints:
// signature-verified order and refund/cancel events that drive the
// inventory engine and, on success, the propagation fan-out.
package webhook

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/proyuen/invsync/internal/analytics"
	"github.com/proyuen/invsync/internal/middleware"
	"github.com/proyuen/invsync/internal/model"
	"github.com/proyuen/invsync/internal/propagation"
	"github.com/proyuen/invsync/internal/service"
	"github.com/proyuen/invsync/pkg/config"
)

type lineItemPayload struct {
	LineItemID string `json:"line_item_id" binding:"required"`
	SKU        string `json:"sku" binding:"required"`
	Qty        int    `json:"qty" binding:"required,gt=0"`
}

type orderPaidPayload struct {
	SiteID    string            `json:"site_id" binding:"required"`
	OrderID   string            `json:"order_id" binding:"required"`
	Status    string            `json:"status" binding:"required"`
	LineItems []lineItemPayload `json:"line_items"`
}

type refundCancelPayload struct {
	SiteID    string            `json:"site_id" binding:"required"`
	OrderID   string            `json:"order_id" binding:"required"`
	EventType string            `json:"event_type"`
	LineItems []lineItemPayload `json:"line_items"`
}

// Handler wires the inventory engine, propagation queue, and analytics sink
// behind the two webhook endpoints.
type Handler struct {
	inventory       service.InventoryService
	queue           *propagation.Queue
	analytics       analytics.Sink
	decrementStatus string
}

// NewHandler creates a new webhook Handler.
func NewHandler(inventory service.InventoryService, queue *propagation.Queue, sink analytics.Sink, webhookCfg config.WebhookConfig) *Handler {
	decrementStatus := webhookCfg.DecrementStatus
	if decrementStatus == "" {
		decrementStatus = "processing"
	}
	return &Handler{
		inventory:       inventory,
		queue:           queue,
		analytics:       sink,
		decrementStatus: decrementStatus,
	}
}

// RegisterRoutes mounts the webhook endpoints under the given group, with
// signature verification applied per the configured auth mode.
func (h *Handler) RegisterRoutes(router gin.IRouter, webhookCfg config.WebhookConfig) {
	group := router.Group("/webhooks/woocommerce", middleware.WebhookAuth(webhookCfg))
	group.POST("/order_paid", h.OrderPaid)
	group.POST("/refund_or_cancel", h.RefundOrCancel)
}

// OrderPaid decrements stock for each line item of a paid order and, for
// every SKU whose stock actually changed, enqueues exactly one propagation
// job and fires a best-effort analytics event.
func (h *Handler) OrderPaid(c *gin.Context) {
	body := middleware.WebhookBody(c)

	var payload orderPaidPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}

	if !strings.EqualFold(payload.Status, h.decrementStatus) {
		c.Status(http.StatusNoContent)
		return
	}

	if len(payload.LineItems) == 0 {
		c.Status(http.StatusNoContent)
		return
	}

	items := make([]service.LineItem, 0, len(payload.LineItems))
	for _, li := range payload.LineItems {
		items = append(items, service.LineItem{LineItemID: li.LineItemID, SKU: li.SKU, Qty: li.Qty})
	}

	results, err := h.inventory.BulkApplyDeltas(c.Request.Context(), payload.SiteID, payload.OrderID, items, model.EventOrderPaid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply inventory deltas"})
		return
	}

	qtyBySKU := make(map[string]int, len(payload.LineItems))
	for _, li := range payload.LineItems {
		qtyBySKU[li.SKU] = li.Qty
	}

	h.fanOut(payload.SiteID, payload.OrderID, model.EventOrderPaid, results, func(sku string) int {
		return -qtyBySKU[sku]
	})

	c.Status(http.StatusNoContent)
}

// RefundOrCancel restocks each line item of a refunded or cancelled order.
func (h *Handler) RefundOrCancel(c *gin.Context) {
	body := middleware.WebhookBody(c)

	var payload refundCancelPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}

	eventType := model.EventType(payload.EventType)
	if eventType == "" {
		eventType = model.EventRefund
	}
	if eventType != model.EventRefund && eventType != model.EventCancel {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid event_type: " + payload.EventType})
		return
	}

	if len(payload.LineItems) == 0 {
		c.Status(http.StatusNoContent)
		return
	}

	items := make([]service.LineItem, 0, len(payload.LineItems))
	for _, li := range payload.LineItems {
		items = append(items, service.LineItem{LineItemID: li.LineItemID, SKU: li.SKU, Qty: li.Qty})
	}

	results, err := h.inventory.BulkApplyDeltas(c.Request.Context(), payload.SiteID, payload.OrderID, items, eventType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply inventory deltas"})
		return
	}

	qtyBySKU := make(map[string]int, len(payload.LineItems))
	for _, li := range payload.LineItems {
		qtyBySKU[li.SKU] = li.Qty
	}

	h.fanOut(payload.SiteID, payload.OrderID, eventType, results, func(sku string) int {
		return qtyBySKU[sku]
	})

	c.Status(http.StatusNoContent)
}

// fanOut enqueues a propagation job and an analytics event for each result
// whose delta was newly applied. signedDelta recovers the signed quantity
// that produced new_on_hand, purely for the analytics event's benefit.
func (h *Handler) fanOut(siteID, orderID string, eventType model.EventType, results []service.DeltaResult, signedDelta func(sku string) int) {
	for _, r := range results {
		if !r.WasNew {
			continue
		}
		h.queue.Enqueue(r.SKU, r.NewOnHand)
		h.analytics.Send(analytics.Event{
			SiteID:    siteID,
			OrderID:   orderID,
			SKU:       r.SKU,
			Delta:     signedDelta(r.SKU),
			EventType: eventType,
			NewOnHand: r.NewOnHand,
			EmittedAt: time.Now().UTC(),
		})
	}
}
