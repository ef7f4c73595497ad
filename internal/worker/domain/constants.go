package domain

import "strings"

// Status is the lifecycle state of a publish job
type Status string

// Job status constants
const (
	JobStatusPending    Status = "PENDING"
	JobStatusProcessing Status = "PROCESSING"
	JobStatusDone       Status = "DONE"
	JobStatusFailed     Status = "FAILED"

	// JobStatusUnknown marks a stored value no adapter could map. Such jobs are never touched.
	JobStatusUnknown Status = "UNKNOWN"
)

// AllowedFrom returns the statuses a job must currently hold to move to the given status.
// FAILED -> PENDING is the operator reset and is never issued by the orchestrator.
func AllowedFrom(to Status) []Status {
	switch to {
	case JobStatusProcessing:
		return []Status{JobStatusPending}
	case JobStatusDone, JobStatusFailed:
		return []Status{JobStatusProcessing}
	case JobStatusPending:
		return []Status{JobStatusFailed}
	default:
		return nil
	}
}

// CanTransition reports whether from -> to is a legal status change
func CanTransition(from, to Status) bool {
	for _, s := range AllowedFrom(to) {
		if s == from {
			return true
		}
	}
	return false
}

// ParseStatus maps stored status text onto the status enum.
// Blank cells count as PENDING, and legacy values written by older tooling are accepted.
func ParseStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "pending":
		return JobStatusPending
	case "processing":
		return JobStatusProcessing
	case "done", "posted", "success", "published":
		return JobStatusDone
	case "failed", "error":
		return JobStatusFailed
	default:
		return JobStatusUnknown
	}
}

// Platform is a publishing target
type Platform string

// Supported platforms
const (
	PlatformInstagram Platform = "Instagram"
	PlatformFacebook  Platform = "Facebook"
	PlatformYouTube   Platform = "YouTube"
	PlatformPinterest Platform = "Pinterest"
)

// AllPlatforms lists every supported platform in a stable order
var AllPlatforms = []Platform{PlatformInstagram, PlatformFacebook, PlatformYouTube, PlatformPinterest}

// ParsePlatform matches a platform name case-insensitively
func ParsePlatform(raw string) (Platform, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	switch key {
	case "instagram", "ig", "insta":
		return PlatformInstagram, true
	case "facebook", "fb":
		return PlatformFacebook, true
	case "youtube", "yt", "youtube shorts", "shorts":
		return PlatformYouTube, true
	case "pinterest", "pin":
		return PlatformPinterest, true
	default:
		return "", false
	}
}

// ParsePlatforms splits a platform cell such as "Instagram + Facebook" into targets.
// Duplicates are dropped and order is preserved.
func ParsePlatforms(raw string) ([]Platform, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '+' || r == ',' || r == '/' || r == '&' || r == ';'
	})

	var platforms []Platform
	seen := make(map[Platform]bool)
	for _, f := range fields {
		if strings.TrimSpace(f) == "" {
			continue
		}
		p, ok := ParsePlatform(f)
		if !ok {
			return nil, &UnknownPlatformError{Value: strings.TrimSpace(f)}
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		platforms = append(platforms, p)
	}

	if len(platforms) == 0 {
		return nil, &UnknownPlatformError{Value: raw}
	}

	return platforms, nil
}

// FormatPlatforms renders targets the way ParsePlatforms reads them
func FormatPlatforms(platforms []Platform) string {
	parts := make([]string, len(platforms))
	for i, p := range platforms {
		parts[i] = string(p)
	}
	return strings.Join(parts, " + ")
}
