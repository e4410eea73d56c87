package domain

import (
	"time"

	"github.com/google/uuid"
)

// Alert is a notice for a user; only its read flag ever changes.
type Alert struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"userId"`
	ProductID *uuid.UUID `json:"productId"`
	Message   string     `json:"message"`
	IsRead    bool       `json:"isRead"`
	CreatedAt time.Time  `json:"createdAt"`
}
