package model

import (
	"database/sql"
	"time"
)

// Job is a publish_jobs row as the operator API reads it
type Job struct {
	ID            string         `db:"id"`
	Platforms     string         `db:"platforms"`
	BrandName     string         `db:"brand_name"`
	MediaRef      string         `db:"media_ref"`
	Title         string         `db:"title"`
	Description   string         `db:"description"`
	Tags          string         `db:"tags"`
	ScheduledDate string         `db:"scheduled_date"`
	ScheduledTime string         `db:"scheduled_time"`
	Status        string         `db:"status"`
	ResultLink    sql.NullString `db:"result_link"`
	LastError     sql.NullString `db:"last_error"`
	DurationMS    sql.NullInt64  `db:"duration_ms"`
	ClaimedAt     sql.NullTime   `db:"claimed_at"`
	CompletedAt   sql.NullTime   `db:"completed_at"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}
