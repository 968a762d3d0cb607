package query

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/es-saga-course/internal/infrastructure/store"
	"github.com/example/es-saga-course/internal/readmodel"
	"github.com/example/es-saga-course/internal/saga"
)

// Handler serves the read side. Lookups report (nil, false) for a missing
// document and log read store failures the same way.
type Handler struct {
	readStore store.ReadStoreInterface
	sagaLogs  saga.LogStore
	log       *slog.Logger
}

func NewHandler(readStore store.ReadStoreInterface, sagaLogs saga.LogStore, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		readStore: readStore,
		sagaLogs:  sagaLogs,
		log:       log.With(slog.String("component", "query")),
	}
}

func get[T any](ctx context.Context, h *Handler, collection, id string) (*T, bool) {
	doc, ok, err := store.GetDocument[T](ctx, h.readStore, collection, id)
	if err != nil {
		h.log.Error("failed to get read model",
			slog.String("collection", collection), slog.String("id", id), slog.Any("error", err))
		return nil, false
	}
	return doc, ok
}

func list[T any](ctx context.Context, h *Handler, collection string, keep func(*T) bool) []*T {
	docs, err := store.ListDocuments[T](ctx, h.readStore, collection)
	if err != nil {
		h.log.Error("failed to list read models", slog.String("collection", collection), slog.Any("error", err))
		return nil
	}
	if keep == nil {
		return docs
	}
	out := make([]*T, 0, len(docs))
	for _, doc := range docs {
		if keep(doc) {
			out = append(out, doc)
		}
	}
	return out
}

// Accounts
func (h *Handler) GetAccount(ctx context.Context, id string) (*AccountDashboard, bool) {
	return get[AccountDashboard](ctx, h, readmodel.CollectionAccounts, id)
}

func (h *Handler) ListAccountsByOwner(ctx context.Context, owner string) []*AccountDashboard {
	return list(ctx, h, readmodel.CollectionAccounts, func(a *AccountDashboard) bool {
		return a.Owner == owner
	})
}

// Claims
func (h *Handler) GetClaim(ctx context.Context, id string) (*ClaimDashboard, bool) {
	return get[ClaimDashboard](ctx, h, readmodel.CollectionClaims, id)
}

// ListClaimsByStatus returns every claim when status is empty.
func (h *Handler) ListClaimsByStatus(ctx context.Context, status string) []*ClaimDashboard {
	var keep func(*ClaimDashboard) bool
	if status != "" {
		keep = func(c *ClaimDashboard) bool { return c.Status == status }
	}
	return list(ctx, h, readmodel.CollectionClaims, keep)
}

func (h *Handler) GetClaimStatistics(ctx context.Context, category string) (*ClaimStatistics, bool) {
	return get[ClaimStatistics](ctx, h, readmodel.CollectionClaimStatistics, category)
}

func (h *Handler) ListClaimStatistics(ctx context.Context) []*ClaimStatistics {
	return list[ClaimStatistics](ctx, h, readmodel.CollectionClaimStatistics, nil)
}

// Orders
func (h *Handler) GetOrder(ctx context.Context, id string) (*OrderDashboard, bool) {
	return get[OrderDashboard](ctx, h, readmodel.CollectionOrders, id)
}

func (h *Handler) ListOrdersByCustomer(ctx context.Context, customerID string) []*OrderDashboard {
	return list(ctx, h, readmodel.CollectionOrders, func(o *OrderDashboard) bool {
		return o.CustomerID == customerID
	})
}

// ListAllOrders returns all orders (for admin use)
func (h *Handler) ListAllOrders(ctx context.Context) []*OrderDashboard {
	return list[OrderDashboard](ctx, h, readmodel.CollectionOrders, nil)
}

// Inventory
func (h *Handler) GetInventory(ctx context.Context, productID string) (*InventoryReadModel, bool) {
	return get[InventoryReadModel](ctx, h, readmodel.CollectionInventory, productID)
}

// Sagas
func (h *Handler) GetSagaLog(ctx context.Context, sagaID string) (*saga.Log, bool) {
	if h.sagaLogs == nil {
		return nil, false
	}
	sagaLog, err := h.sagaLogs.Get(ctx, sagaID)
	if err != nil {
		if !errors.Is(err, saga.ErrLogNotFound) {
			h.log.Error("failed to get saga log", slog.String("saga_id", sagaID), slog.Any("error", err))
		}
		return nil, false
	}
	return sagaLog, true
}
