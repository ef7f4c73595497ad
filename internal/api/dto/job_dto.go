package dto

type ListJobsRequest struct {
	Status   string `form:"status"`
	Platform string `form:"platform"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID         string   `json:"job_id"`
	Platforms     []string `json:"platforms"`
	BrandName     string   `json:"brand_name"`
	MediaRef      string   `json:"media_ref"`
	Title         string   `json:"title,omitempty"`
	Description   string   `json:"description,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	ScheduledDate string   `json:"scheduled_date"`
	ScheduledTime string   `json:"scheduled_time"`
	Status        string   `json:"status"`
	ResultLink    string   `json:"result_link,omitempty"`
	LastError     string   `json:"last_error,omitempty"`
	DurationMS    *int64   `json:"duration_ms,omitempty"`
	ClaimedAt     string   `json:"claimed_at,omitempty"`
	CompletedAt   string   `json:"completed_at,omitempty"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
