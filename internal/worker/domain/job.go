package domain

import (
	"log/slog"
	"strings"
	"time"
)

// Job is one scheduled publishing task read from the task store
type Job struct {
	ID            string
	Platforms     []Platform
	BrandName     string
	MediaRef      string
	Title         string
	Description   string
	Tags          []string
	ScheduledDate string // operator-typed, parsed by the schedule gate
	ScheduledTime string
	Status        Status
	ResultLink    string
	LastError     string
	Duration      time.Duration
}

// Caption returns the platform-agnostic caption fields of the job
func (j *Job) Caption() Caption {
	return Caption{
		Title:       j.Title,
		Description: j.Description,
		Tags:        j.Tags,
	}
}

// StatusUpdate is the single write the orchestrator makes per transition
type StatusUpdate struct {
	Status     Status
	ResultLink string
	LastError  string
	Duration   time.Duration
}

// Normalized enforces that ResultLink is only kept for DONE and LastError only for FAILED
func (u StatusUpdate) Normalized() StatusUpdate {
	if u.Status != JobStatusDone {
		u.ResultLink = ""
	}
	if u.Status != JobStatusFailed {
		u.LastError = ""
	}
	return u
}

// Caption holds free-text post metadata. Each driver formats it for its platform.
type Caption struct {
	Title       string
	Description string
	Tags        []string
}

// Hashtags renders tags as "#a #b", keeping tags that already start with '#'
func (c Caption) Hashtags() string {
	out := make([]string, 0, len(c.Tags))
	for _, t := range c.Tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if !strings.HasPrefix(t, "#") {
			t = "#" + strings.ReplaceAll(t, " ", "")
		}
		out = append(out, t)
	}
	return strings.Join(out, " ")
}

// Text joins title, description and hashtags with blank lines, skipping empty parts
func (c Caption) Text() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{strings.TrimSpace(c.Title), strings.TrimSpace(c.Description), c.Hashtags()} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n\n")
}

// ParseTags splits a tags cell on commas or whitespace
func ParseTags(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
	tags := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			tags = append(tags, f)
		}
	}
	return tags
}

// Truncate cuts s to at most n runes
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Account is a resolved platform identity for a brand. Immutable once built.
type Account struct {
	Platform      Platform
	AccountID     string
	CredentialRef string
	Credential    string
	BoardID       string
}

// LogValue keeps the credential out of log output
func (a Account) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("platform", string(a.Platform)),
		slog.String("account_id", a.AccountID),
		slog.String("credential_ref", a.CredentialRef),
	)
}

// MediaHandle is a locally acquired media artifact
type MediaHandle struct {
	Path        string
	Size        int64
	ContentType string
	SourceURL   string
	PublicURL   string // set only when a driver needs a fetchable URL
}
