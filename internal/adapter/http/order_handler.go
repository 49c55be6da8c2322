package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/comanda-pos/comanda/internal/adapter/logger"
	"github.com/comanda-pos/comanda/internal/domain"
	"github.com/comanda-pos/comanda/internal/interfaces"
)

type OrderHandler struct {
	service interfaces.OrderService
	logger  logger.Logger
}

func NewOrderHandler(service interfaces.OrderService, lgr logger.Logger) *OrderHandler {
	return &OrderHandler{service: service, logger: lgr}
}

func (h *OrderHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /orders", h.CreateOrder)
	mux.HandleFunc("GET /orders/{id}", h.GetOrder)
	mux.HandleFunc("GET /orders/{id}/history", h.GetHistory)
	mux.HandleFunc("POST /orders/{id}/items", h.AddItem)
	mux.HandleFunc("DELETE /orders/{id}/items/{itemID}", h.RemoveItem)
	mux.HandleFunc("POST /orders/{id}/status", h.TransitionStatus)
	mux.HandleFunc("POST /orders/{id}/reopen", h.Reopen)
}

type createOrderRequest struct {
	Channel          string           `json:"channel"`
	CustomerRef      *uuid.UUID       `json:"customer_ref,omitempty"`
	AddressSnapshot  *string          `json:"address_snapshot,omitempty"`
	TableRef         *int             `json:"table_ref,omitempty"`
	PaymentMethodRef *uuid.UUID       `json:"payment_method_ref,omitempty"`
	Discount         decimal.Decimal  `json:"discount"`
	DeliveryFee      decimal.Decimal  `json:"delivery_fee"`
	ServiceFee       decimal.Decimal  `json:"service_fee"`
	AmountTendered   *decimal.Decimal `json:"amount_tendered,omitempty"`
	InitialStatus    string           `json:"initial_status,omitempty"`
	NumberPrefix     string           `json:"number_prefix,omitempty"`
	ActorID          *uuid.UUID       `json:"actor_id,omitempty"`
}

type orderResponse struct {
	ID          int64              `json:"id"`
	Number      string             `json:"number"`
	Channel     domain.Channel     `json:"channel"`
	Status      domain.OrderStatus `json:"status"`
	Subtotal    decimal.Decimal    `json:"subtotal"`
	Discount    decimal.Decimal    `json:"discount"`
	DeliveryFee decimal.Decimal    `json:"delivery_fee"`
	ServiceFee  decimal.Decimal    `json:"service_fee"`
	Total       decimal.Decimal    `json:"total"`
	ItemCount   int                `json:"item_count"`
}

func toOrderResponse(o *domain.Order) orderResponse {
	return orderResponse{
		ID:          o.ID,
		Number:      o.Number,
		Channel:     o.Channel,
		Status:      o.Status,
		Subtotal:    o.Subtotal,
		Discount:    o.Discount,
		DeliveryFee: o.DeliveryFee,
		ServiceFee:  o.ServiceFee,
		Total:       o.Total,
		ItemCount:   len(o.Items),
	}
}

func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	tenant, err := tenantID(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, domain.NewValidationError("body", "invalid request body"))
		return
	}

	order, err := h.service.CreateOrder(r.Context(), interfaces.CreateOrderCommand{
		TenantID:         tenant,
		Channel:          req.Channel,
		CustomerRef:      req.CustomerRef,
		AddressSnapshot:  req.AddressSnapshot,
		TableRef:         req.TableRef,
		PaymentMethodRef: req.PaymentMethodRef,
		Discount:         req.Discount,
		DeliveryFee:      req.DeliveryFee,
		ServiceFee:       req.ServiceFee,
		AmountTendered:   req.AmountTendered,
		InitialStatus:    req.InitialStatus,
		NumberPrefix:     req.NumberPrefix,
		ActorID:          req.ActorID,
	})
	if err != nil {
		h.logger.Error("order_creation_failed", "Failed to create order", "", nil, err)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	tenant, orderID, err := orderScope(r)
	if err != nil {
		respondError(w, err)
		return
	}

	order, err := h.service.GetOrder(r.Context(), tenant, orderID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(order))
}

type historyEntryResponse struct {
	PrevStatus domain.OrderStatus   `json:"prev_status"`
	NewStatus  domain.OrderStatus   `json:"new_status"`
	Operation  domain.OperationType `json:"operation"`
	Reason     string               `json:"reason"`
	CreatedAt  string               `json:"created_at"`
}

func (h *OrderHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	tenant, orderID, err := orderScope(r)
	if err != nil {
		respondError(w, err)
		return
	}

	entries, err := h.service.GetHistory(r.Context(), tenant, orderID)
	if err != nil {
		respondError(w, err)
		return
	}

	resp := make([]historyEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, historyEntryResponse{
			PrevStatus: e.PrevStatus,
			NewStatus:  e.NewStatus,
			Operation:  e.Operation,
			Reason:     e.Reason,
			CreatedAt:  e.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

type addItemRequest struct {
	ProductID *uuid.UUID          `json:"product_id,omitempty"`
	RecipeID  *uuid.UUID          `json:"recipe_id,omitempty"`
	BundleID  *uuid.UUID          `json:"bundle_id,omitempty"`
	Quantity  int                 `json:"quantity"`
	Note      string              `json:"note,omitempty"`
	Groups    []itemGroupRequest `json:"complement_groups,omitempty"`
	ActorID   *uuid.UUID          `json:"actor_id,omitempty"`
}

type itemGroupRequest struct {
	GroupRef     uuid.UUID          `json:"group_ref"`
	Name         string             `json:"name"`
	Required     bool               `json:"required"`
	Quantitative bool               `json:"quantitative"`
	MinSelection int                `json:"min_selection"`
	MaxSelection int                `json:"max_selection"`
	Addons       []itemAddonRequest `json:"addons"`
}

type itemAddonRequest struct {
	AddonRef  uuid.UUID       `json:"addon_ref"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

func (h *OrderHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	tenant, orderID, err := orderScope(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, domain.NewValidationError("body", "invalid request body"))
		return
	}

	groups := make([]interfaces.ComplementGroupCommand, len(req.Groups))
	for i, g := range req.Groups {
		addons := make([]interfaces.AddonSelectionCommand, len(g.Addons))
		for j, a := range g.Addons {
			addons[j] = interfaces.AddonSelectionCommand{
				AddonRef:  a.AddonRef,
				Name:      a.Name,
				UnitPrice: a.UnitPrice,
				Quantity:  a.Quantity,
			}
		}
		groups[i] = interfaces.ComplementGroupCommand{
			GroupRef:     g.GroupRef,
			Name:         g.Name,
			Required:     g.Required,
			Quantitative: g.Quantitative,
			MinSelection: g.MinSelection,
			MaxSelection: g.MaxSelection,
			Addons:       addons,
		}
	}

	order, err := h.service.AddLineItem(r.Context(), interfaces.AddLineItemCommand{
		TenantID:  tenant,
		OrderID:   orderID,
		ProductID: req.ProductID,
		RecipeID:  req.RecipeID,
		BundleID:  req.BundleID,
		Quantity:  req.Quantity,
		Note:      req.Note,
		Groups:    groups,
		ActorID:   req.ActorID,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	tenant, orderID, err := orderScope(r)
	if err != nil {
		respondError(w, err)
		return
	}
	itemID, err := strconv.ParseInt(r.PathValue("itemID"), 10, 64)
	if err != nil {
		respondError(w, domain.NewValidationError("item_id", "item id must be numeric"))
		return
	}

	order, err := h.service.RemoveLineItem(r.Context(), interfaces.RemoveLineItemCommand{
		TenantID: tenant,
		OrderID:  orderID,
		ItemID:   itemID,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(order))
}

type transitionRequest struct {
	Status  string     `json:"status"`
	Reason  string     `json:"reason,omitempty"`
	ActorID *uuid.UUID `json:"actor_id,omitempty"`
}

func (h *OrderHandler) TransitionStatus(w http.ResponseWriter, r *http.Request) {
	tenant, orderID, err := orderScope(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, domain.NewValidationError("body", "invalid request body"))
		return
	}

	order, err := h.service.TransitionStatus(r.Context(), interfaces.TransitionCommand{
		TenantID: tenant,
		OrderID:  orderID,
		Status:   req.Status,
		Reason:   req.Reason,
		ActorID:  req.ActorID,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	tenant, orderID, err := orderScope(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, domain.NewValidationError("body", "invalid request body"))
		return
	}

	order, err := h.service.ReopenOrder(r.Context(), interfaces.ReopenCommand{
		TenantID: tenant,
		OrderID:  orderID,
		Status:   req.Status,
		Reason:   req.Reason,
		ActorID:  req.ActorID,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(order))
}

func orderScope(r *http.Request) (uuid.UUID, int64, error) {
	tenant, err := tenantID(r)
	if err != nil {
		return uuid.Nil, 0, err
	}
	orderID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return uuid.Nil, 0, domain.NewValidationError("order_id", "order id must be numeric")
	}
	return tenant, orderID, nil
}
