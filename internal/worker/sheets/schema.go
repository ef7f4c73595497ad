package sheets

import (
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/publish-orchestrator/internal/worker/domain"
)

type field int

const (
	fieldID field = iota
	fieldDate
	fieldTime
	fieldBrand
	fieldPlatform
	fieldMedia
	fieldTitle
	fieldTags
	fieldDescription
	fieldStatus
	fieldLink
	fieldError
	fieldDuration
)

var fieldNames = map[field]string{
	fieldID:          "ID",
	fieldDate:        "Date",
	fieldTime:        "Time",
	fieldBrand:       "Brand",
	fieldPlatform:    "Platform",
	fieldMedia:       "Video URL",
	fieldTitle:       "Title",
	fieldTags:        "Hashtags",
	fieldDescription: "Description",
	fieldStatus:      "Status",
	fieldLink:        "Live URL",
	fieldError:       "Log",
	fieldDuration:    "Duration",
}

// headerAliases maps normalized header text onto fields
var headerAliases = map[string]field{
	"id":            fieldID,
	"jobid":         fieldID,
	"date":          fieldDate,
	"scheduleddate": fieldDate,
	"time":          fieldTime,
	"scheduledtime": fieldTime,
	"brand":         fieldBrand,
	"brandname":     fieldBrand,
	"account":       fieldBrand,
	"platform":      fieldPlatform,
	"platforms":     fieldPlatform,
	"videourl":      fieldMedia,
	"mediaurl":      fieldMedia,
	"drivelink":     fieldMedia,
	"media":         fieldMedia,
	"title":         fieldTitle,
	"hashtags":      fieldTags,
	"tags":          fieldTags,
	"description":   fieldDescription,
	"caption":       fieldDescription,
	"status":        fieldStatus,
	"liveurl":       fieldLink,
	"resultlink":    fieldLink,
	"link":          fieldLink,
	"log":           fieldError,
	"error":         fieldError,
	"lasterror":     fieldError,
	"duration":      fieldDuration,
}

var requiredFields = []field{fieldDate, fieldTime, fieldBrand, fieldPlatform, fieldMedia, fieldStatus}

// schema maps fields onto 0-based column indexes of one worksheet
type schema struct {
	columns map[field]int
	width   int
}

func normalizeHeader(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// parseHeader builds the schema from the header row. The first matching column wins.
func parseHeader(header []string) (*schema, error) {
	s := &schema{columns: make(map[field]int), width: len(header)}
	for i, h := range header {
		f, ok := headerAliases[normalizeHeader(h)]
		if !ok {
			continue
		}
		if _, dup := s.columns[f]; dup {
			continue
		}
		s.columns[f] = i
	}

	for _, f := range requiredFields {
		if _, ok := s.columns[f]; !ok {
			return nil, domain.Errorf(domain.KindConfig, "worksheet has no %s column", fieldNames[f])
		}
	}

	return s, nil
}

func (s *schema) has(f field) bool {
	_, ok := s.columns[f]
	return ok
}

func (s *schema) cell(row []string, f field) string {
	i, ok := s.columns[f]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// rowID is the ID cell when present, otherwise the 1-based sheet row number
func (s *schema) rowID(row []string, sheetRow int) string {
	if id := s.cell(row, fieldID); id != "" {
		return id
	}
	return strconv.Itoa(sheetRow)
}

func (s *schema) toJob(row []string, sheetRow int) (domain.Job, error) {
	job := domain.Job{
		ID:            s.rowID(row, sheetRow),
		BrandName:     s.cell(row, fieldBrand),
		MediaRef:      s.cell(row, fieldMedia),
		Title:         s.cell(row, fieldTitle),
		Description:   s.cell(row, fieldDescription),
		Tags:          domain.ParseTags(s.cell(row, fieldTags)),
		ScheduledDate: s.cell(row, fieldDate),
		ScheduledTime: s.cell(row, fieldTime),
		Status:        domain.ParseStatus(s.cell(row, fieldStatus)),
		ResultLink:    s.cell(row, fieldLink),
		LastError:     s.cell(row, fieldError),
	}
	if d, err := time.ParseDuration(s.cell(row, fieldDuration)); err == nil {
		job.Duration = d
	}

	platforms, err := domain.ParsePlatforms(s.cell(row, fieldPlatform))
	job.Platforms = platforms
	return job, err
}

// cells renders a status update into column index -> value, skipping absent columns
func (s *schema) cells(u domain.StatusUpdate) map[int]string {
	out := map[int]string{s.columns[fieldStatus]: string(u.Status)}
	if i, ok := s.columns[fieldLink]; ok {
		out[i] = u.ResultLink
	}
	if i, ok := s.columns[fieldError]; ok {
		out[i] = u.LastError
	}
	if i, ok := s.columns[fieldDuration]; ok && u.Duration > 0 {
		out[i] = u.Duration.Round(100 * time.Millisecond).String()
	}
	return out
}

// columnLetter converts a 0-based index to A1 column letters
func columnLetter(i int) string {
	var b []byte
	for i >= 0 {
		b = append([]byte{byte('A' + i%26)}, b...)
		i = i/26 - 1
	}
	return string(b)
}
