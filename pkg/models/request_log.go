package models

import (
	"time"

	"github.com/google/uuid"
)

// RequestLog records one request made against a WooCommerce store. Kept for
// troubleshooting credential and throttling issues; pruned by retention.
type RequestLog struct {
	ID       uuid.UUID `db:"id" json:"id"`
	ServerID uuid.UUID `db:"server_id" json:"server_id"`

	Method     string `db:"method" json:"method"`
	Endpoint   string `db:"endpoint" json:"endpoint"`
	StatusCode int    `db:"status_code" json:"status_code"`
	DurationMs int64  `db:"duration_ms" json:"duration_ms"`
	Error      string `db:"error" json:"error,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// TableName returns the database table name
func (RequestLog) TableName() string {
	return "request_logs"
}
