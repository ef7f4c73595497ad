package sheets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// Values is the cell access the store needs from one worksheet
type Values interface {
	// ReadAll returns every row including the header
	ReadAll(ctx context.Context) ([][]string, error)
	// ReadRow returns one 1-based sheet row
	ReadRow(ctx context.Context, row int) ([]string, error)
	// WriteCells writes column index -> value within one 1-based sheet row
	WriteCells(ctx context.Context, row int, cells map[int]string) error
}

// ValuesConfig identifies the worksheet and how to authenticate
type ValuesConfig struct {
	SpreadsheetID   string
	Worksheet       string
	CredentialsFile string
	Endpoint        string
}

type apiValues struct {
	svc           *sheetsapi.Service
	spreadsheetID string
	worksheet     string
}

// NewValues creates a Sheets API backed Values using a service account key file
func NewValues(ctx context.Context, cfg ValuesConfig) (Values, error) {
	key, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheets credentials: %w", err)
	}

	creds, err := google.CredentialsFromJSON(ctx, key, sheetsapi.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sheets credentials: %w", err)
	}

	opts := []option.ClientOption{option.WithCredentials(creds)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	return newValues(ctx, cfg, opts...)
}

func newValues(ctx context.Context, cfg ValuesConfig, opts ...option.ClientOption) (*apiValues, error) {
	svc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &apiValues{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		worksheet:     cfg.Worksheet,
	}, nil
}

func (v *apiValues) sheetRange(a1 string) string {
	name := "'" + strings.ReplaceAll(v.worksheet, "'", "''") + "'"
	if a1 == "" {
		return name
	}
	return name + "!" + a1
}

func (v *apiValues) ReadAll(ctx context.Context) ([][]string, error) {
	return v.read(ctx, v.sheetRange(""))
}

func (v *apiValues) ReadRow(ctx context.Context, row int) ([]string, error) {
	rows, err := v.read(ctx, v.sheetRange(fmt.Sprintf("%d:%d", row, row)))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (v *apiValues) read(ctx context.Context, rng string) ([][]string, error) {
	resp, err := v.svc.Spreadsheets.Values.Get(v.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read range %s: %w", rng, err)
	}

	rows := make([][]string, len(resp.Values))
	for i, r := range resp.Values {
		rows[i] = make([]string, len(r))
		for j, c := range r {
			rows[i][j] = fmt.Sprint(c)
		}
	}
	return rows, nil
}

func (v *apiValues) WriteCells(ctx context.Context, row int, cells map[int]string) error {
	req := &sheetsapi.BatchUpdateValuesRequest{ValueInputOption: "RAW"}
	for col, value := range cells {
		req.Data = append(req.Data, &sheetsapi.ValueRange{
			Range:  v.sheetRange(fmt.Sprintf("%s%d", columnLetter(col), row)),
			Values: [][]interface{}{{value}},
		})
	}

	if _, err := v.svc.Spreadsheets.Values.BatchUpdate(v.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}
