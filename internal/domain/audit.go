package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction is the kind of change an audit entry records.
type AuditAction string

const (
	AuditCreate AuditAction = "CREATE"
	AuditUpdate AuditAction = "UPDATE"
	AuditDelete AuditAction = "DELETE"
)

// Entity types recorded in the audit log.
const (
	EntityProduct       = "Product"
	EntityStockMovement = "StockMovement"
	EntitySale          = "Sale"
	EntityAlert         = "Alert"
	EntityUser          = "User"
)

// AuditLog is an append-only record of who changed what.
type AuditLog struct {
	ID         uuid.UUID       `json:"id"`
	Action     AuditAction     `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	UserID     uuid.UUID       `json:"userId"`
	Details    json.RawMessage `json:"details"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// AuditLogView adds the actor's display fields.
type AuditLogView struct {
	AuditLog
	User struct {
		Name     string `json:"name"`
		Username string `json:"username"`
	} `json:"user"`
}
