package ledger

import (
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/d60-Lab/tailor-checkout/internal/model"
)

// RowWidth 账本固定列数
const RowWidth = 23

// Columns 表头，顺序即写入顺序
var Columns = [RowWidth]string{
	"Order ID", "Customer Name", "Email", "Phone",
	"Products", "Quantities", "Prices", "Total", "Shipping", "Tax",
	"Order Date", "Status",
	"Address", "City", "State", "Zip", "Country",
	"Measurements", "Notes", "Category", "Subcategory", "Images", "Payment Method",
}

const (
	cellSep   = "; "
	dateFmt   = "2006-01-02 15:04:05"
	moneyPrec = 2
)

// BuildRow 将订单展开为 23 列
func BuildRow(rec model.OrderRecord) []string {
	items := rec.Items
	names := make([]string, len(items))
	qtys := make([]string, len(items))
	prices := make([]string, len(items))
	categories := make([]string, len(items))
	subs := make([]string, len(items))
	images := make([]string, len(items))
	for i, it := range items {
		names[i] = it.Name
		qtys[i] = strconv.Itoa(it.Quantity)
		prices[i] = money(it.UnitPrice())
		categories[i] = it.Category
		subs[i] = it.SubCategory
		images[i] = it.Image
	}

	row := []string{
		rec.Reference,
		rec.Customer.Name,
		rec.Customer.Email,
		rec.Customer.Phone,
		strings.Join(names, cellSep),
		strings.Join(qtys, cellSep),
		strings.Join(prices, cellSep),
		money(rec.Total),
		money(rec.Shipping),
		money(rec.Tax),
		rec.OrderedAt.Format(dateFmt),
		rec.PaymentStatus,
		normalizeAddress(rec.Address.Street),
		rec.Address.City,
		rec.Address.State,
		rec.Address.Zip,
		rec.Address.Country,
		MeasurementBlock(rec.Measurements),
		rec.Notes,
		joinNonEmpty(categories),
		joinNonEmpty(subs),
		joinNonEmpty(images),
		rec.PaymentMethod,
	}
	return NormalizeRow(row)
}

// NormalizeRow pads with empty cells or truncates to RowWidth.
func NormalizeRow(cells []string) []string {
	out := make([]string, RowWidth)
	copy(out, cells)
	return out
}

// MeasurementBlock 每人一段，段间空行
func MeasurementBlock(ms []model.Measurement) string {
	blocks := make([]string, 0, len(ms))
	for _, m := range ms {
		keys := make([]string, 0, len(m.Values))
		for k := range m.Values {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		header := m.Name
		if header == "" {
			header = "Measurements"
		}
		if m.Unit != "" {
			header += " (" + m.Unit + ")"
		}
		lines := []string{header + ":"}
		for _, k := range keys {
			lines = append(lines, "  "+k+": "+m.Values[k])
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

func normalizeAddress(s string) string {
	parts := strings.Split(s, ",")
	lines := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			lines = append(lines, p)
		}
	}
	return strings.Join(lines, "\n")
}

func joinNonEmpty(vals []string) string {
	for _, v := range vals {
		if v != "" {
			return strings.Join(vals, cellSep)
		}
	}
	return ""
}

func money(d decimal.Decimal) string {
	return d.StringFixed(moneyPrec)
}

// ToValues converts a row for the Sheets API.
func ToValues(row []string) []interface{} {
	vals := make([]interface{}, len(row))
	for i, c := range row {
		vals[i] = c
	}
	return vals
}
