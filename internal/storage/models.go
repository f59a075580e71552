package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Query is a question a user asked and the answer the service returned.
type Query struct {
	ID           int64
	UserID       int64
	QueryText    string
	ResponseText string // JSON document stored as text
	CreatedAt    time.Time
}

type Report struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"userId"`
	ReportName string    `json:"reportName"`
	ReportFile string    `json:"reportFile"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Rows is the result of a read-only statement. Columns keep the order of the
// SELECT list.
type Rows struct {
	Columns []string
	Values  [][]any
}
