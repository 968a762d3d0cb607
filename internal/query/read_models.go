package query

// Re-export read models from readmodel package so callers need one import.
import "github.com/example/es-saga-course/internal/readmodel"

type AccountDashboard = readmodel.AccountDashboard
type ClaimDashboard = readmodel.ClaimDashboard
type ClaimStatistics = readmodel.ClaimStatistics
type OrderItemReadModel = readmodel.OrderItemReadModel
type OrderDashboard = readmodel.OrderDashboard
type InventoryReadModel = readmodel.InventoryReadModel
