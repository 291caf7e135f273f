package gateway

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/d60-Lab/tailor-checkout/internal/model"
)

// MaxMetadataValueLen 单个 custom field 的最大字符数
const MaxMetadataValueLen = 1000

const (
	itemSep        = "; "
	personSep      = " | "
	measurementSep = ", "
)

// BuildMetadata 把订单压缩为有限个命名字段，供只走 webhook 时还原
func BuildMetadata(order *model.PendingOrder) model.Metadata {
	if order == nil {
		return model.Metadata{}
	}
	fields := []struct{ display, name, value string }{
		{"Customer Name", model.FieldCustomerName, order.Customer.Name},
		{"Customer Phone", model.FieldCustomerPhone, order.Customer.Phone},
		{"Order Items", model.FieldOrderItems, encodeItems(order.Items)},
		{"Measurements", model.FieldMeasurements, EncodeMeasurements(order.Measurements)},
		{"Delivery Address", model.FieldDeliveryAddress, encodeAddress(order.Address)},
		{"Delivery Speed", model.FieldDeliverySpeed, order.DeliverySpeed},
		{"Notes", model.FieldNotes, order.Notes},
	}

	md := model.Metadata{CustomFields: make([]model.CustomField, 0, len(fields))}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		md.CustomFields = append(md.CustomFields, model.CustomField{
			DisplayName:  f.display,
			VariableName: f.name,
			Value:        truncate(f.value, MaxMetadataValueLen),
		})
	}
	return md
}

// OrderFromMetadata 从交易 metadata 还原订单；单价无法还原，置零
func OrderFromMetadata(txn *model.Transaction) model.PendingOrder {
	md := txn.Metadata
	name := md.Field(model.FieldCustomerName)
	if name == "" {
		name = strings.TrimSpace(txn.Customer.FirstName + " " + txn.Customer.LastName)
	}
	phone := md.Field(model.FieldCustomerPhone)
	if phone == "" {
		phone = txn.Customer.Phone
	}

	return model.PendingOrder{
		Customer: model.Customer{
			Name:  name,
			Email: txn.Customer.Email,
			Phone: phone,
		},
		Address:       model.Address{Street: md.Field(model.FieldDeliveryAddress)},
		Items:         decodeItems(md.Field(model.FieldOrderItems)),
		Measurements:  DecodeMeasurements(md.Field(model.FieldMeasurements)),
		Total:         txn.Amount,
		Currency:      txn.Currency,
		DeliverySpeed: md.Field(model.FieldDeliverySpeed),
		Notes:         md.Field(model.FieldNotes),
	}
}

func encodeItems(items []model.CartItem) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, fmt.Sprintf("%s x%d", it.Name, it.Quantity))
	}
	return strings.Join(parts, itemSep)
}

func decodeItems(s string) []model.CartItem {
	if s == "" {
		return nil
	}
	var items []model.CartItem
	for _, part := range strings.Split(s, itemSep) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		item := model.CartItem{Name: part, Quantity: 1, Price: decimal.Zero, SalePrice: decimal.Zero}
		if i := strings.LastIndex(part, " x"); i > 0 {
			if qty, err := strconv.Atoi(part[i+2:]); err == nil && qty > 0 {
				item.Name = part[:i]
				item.Quantity = qty
			}
		}
		items = append(items, item)
	}
	return items
}

// EncodeMeasurements "Ade: chest=40, waist=32 | Bola: neck=15"; keys sorted
func EncodeMeasurements(ms []model.Measurement) string {
	people := make([]string, 0, len(ms))
	for _, m := range ms {
		keys := make([]string, 0, len(m.Values))
		for k := range m.Values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+m.Values[k])
		}
		people = append(people, m.Name+": "+strings.Join(pairs, measurementSep))
	}
	return strings.Join(people, personSep)
}

func DecodeMeasurements(s string) []model.Measurement {
	if s == "" {
		return nil
	}
	var out []model.Measurement
	for _, person := range strings.Split(s, personSep) {
		name, rest, ok := strings.Cut(person, ": ")
		if !ok {
			name, rest = "", person
		}
		m := model.Measurement{Name: strings.TrimSpace(name), Values: map[string]string{}}
		for _, pair := range strings.Split(rest, measurementSep) {
			k, v, ok := strings.Cut(pair, "=")
			if !ok {
				continue
			}
			m.Values[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
		out = append(out, m)
	}
	return out
}

func encodeAddress(a model.Address) string {
	parts := make([]string, 0, 5)
	for _, p := range []string{a.Street, a.City, a.State, a.Zip, a.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
