package ledger

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/d60-Lab/tailor-checkout/config"
)

// GoogleSheets 基于 Sheets API v4 的 SheetsAPI 实现
type GoogleSheets struct {
	svc *sheets.Service
}

// NewGoogleSheets 使用服务账号凭据创建客户端
func NewGoogleSheets(ctx context.Context, cfg config.SheetsConfig) (*GoogleSheets, error) {
	opts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}
	switch {
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	default:
		return nil, fmt.Errorf("sheets credentials: %w", ErrNotConfigured)
	}

	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &GoogleSheets{svc: svc}, nil
}

func (g *GoogleSheets) SheetTitles(ctx context.Context, spreadsheetID string) ([]string, error) {
	ss, err := g.svc.Spreadsheets.Get(spreadsheetID).
		Fields("sheets.properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(ss.Sheets))
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			titles = append(titles, s.Properties.Title)
		}
	}
	return titles, nil
}

func (g *GoogleSheets) AddSheet(ctx context.Context, spreadsheetID, title string) error {
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: title},
			},
		}},
	}
	_, err := g.svc.Spreadsheets.BatchUpdate(spreadsheetID, req).Context(ctx).Do()
	return err
}

// AppendRow writes RAW values so customer text is never evaluated as a formula.
func (g *GoogleSheets) AppendRow(ctx context.Context, spreadsheetID, rangeA1 string, row []interface{}) error {
	_, err := g.svc.Spreadsheets.Values.
		Append(spreadsheetID, rangeA1, &sheets.ValueRange{Values: [][]interface{}{row}}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}
