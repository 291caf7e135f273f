package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"

	"github.com/d60-Lab/tailor-checkout/config"
	"github.com/d60-Lab/tailor-checkout/internal/model"
	"github.com/d60-Lab/tailor-checkout/pkg/logger"
)

// ErrNotConfigured spreadsheet id 未配置
var ErrNotConfigured = errors.New("ledger: spreadsheet is not configured")

// ExportError 包装底层传输/鉴权错误
type ExportError struct {
	Reference string
	Err       error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export order %s: %v", e.Reference, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// SheetsAPI 账本存储需要的最小能力
type SheetsAPI interface {
	SheetTitles(ctx context.Context, spreadsheetID string) ([]string, error)
	AddSheet(ctx context.Context, spreadsheetID, title string) error
	AppendRow(ctx context.Context, spreadsheetID, rangeA1 string, row []interface{}) error
}

// Exporter 追加订单行
type Exporter struct {
	api           SheetsAPI
	spreadsheetID string
	sheetName     string
	timeout       time.Duration
	tries         uint
	retryInterval time.Duration

	mu    sync.Mutex
	ready bool
}

func NewExporter(api SheetsAPI, cfg config.SheetsConfig) *Exporter {
	if cfg.SheetName == "" {
		cfg.SheetName = "Orders"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.AppendTries == 0 {
		cfg.AppendTries = 3
	}
	return &Exporter{
		api:           api,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     cfg.SheetName,
		timeout:       cfg.Timeout,
		tries:         cfg.AppendTries,
		retryInterval: 500 * time.Millisecond,
	}
}

// AppendOrder 确保 sheet 存在后从 A 列追加一行
func (e *Exporter) AppendOrder(ctx context.Context, rec model.OrderRecord) error {
	if e.api == nil || e.spreadsheetID == "" {
		return &ExportError{Reference: rec.Reference, Err: ErrNotConfigured}
	}
	row := ToValues(BuildRow(rec))

	if err := e.ensureSheet(ctx); err != nil {
		return &ExportError{Reference: rec.Reference, Err: err}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.retryInterval
	b.MaxInterval = 8 * e.retryInterval

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		err := e.api.AppendRow(callCtx, e.spreadsheetID, e.rangeA1(), row)
		if err == nil {
			return struct{}{}, nil
		}
		if !retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		logger.Warn("ledger append attempt failed",
			zap.String("reference", rec.Reference),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(e.tries))
	if err != nil {
		return &ExportError{Reference: rec.Reference, Err: err}
	}

	logger.Info("order appended to ledger",
		zap.String("reference", rec.Reference),
		zap.String("sheet", e.sheetName),
	)
	return nil
}

func (e *Exporter) ensureSheet(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ready {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	exists, err := e.sheetExists(callCtx)
	if err != nil {
		return fmt.Errorf("list sheets: %w", err)
	}
	if !exists {
		if err := e.api.AddSheet(callCtx, e.spreadsheetID, e.sheetName); err != nil {
			// another instance may have created it concurrently
			if exists, lerr := e.sheetExists(callCtx); lerr != nil || !exists {
				return fmt.Errorf("add sheet %q: %w", e.sheetName, err)
			}
		} else {
			logger.Info("ledger sheet created", zap.String("sheet", e.sheetName))
		}
	}
	e.ready = true
	return nil
}

func (e *Exporter) sheetExists(ctx context.Context) (bool, error) {
	titles, err := e.api.SheetTitles(ctx, e.spreadsheetID)
	if err != nil {
		return false, err
	}
	for _, t := range titles {
		if t == e.sheetName {
			return true, nil
		}
	}
	return false, nil
}

func (e *Exporter) rangeA1() string {
	return "'" + strings.ReplaceAll(e.sheetName, "'", "''") + "'!A1"
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500
	}
	return true
}
