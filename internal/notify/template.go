package notify

import (
	htmltemplate "html/template"
	"sort"
	"strconv"
	"strings"
	texttemplate "text/template"

	"github.com/d60-Lab/tailor-checkout/internal/model"
)

type itemLine struct {
	Name     string
	Quantity int
	Price    string
}

type measurementLine struct {
	Name   string
	Values string
}

type emailView struct {
	Subject       string
	Reference     string
	Name          string
	Email         string
	Phone         string
	Total         string
	PaymentStatus string
	PaymentMethod string
	OrderedAt     string
	Address       string
	DeliverySpeed string
	Notes         string
	Items         []itemLine
	Measurements  []measurementLine
	Mismatch      bool
}

func newEmailView(rec model.OrderRecord) emailView {
	v := emailView{
		Reference:     rec.Reference,
		Name:          rec.Customer.Name,
		Email:         rec.Customer.Email,
		Phone:         rec.Customer.Phone,
		Total:         strings.TrimSpace(rec.Currency + " " + rec.Total.StringFixed(2)),
		PaymentStatus: rec.PaymentStatus,
		PaymentMethod: rec.PaymentMethod,
		OrderedAt:     rec.OrderedAt.Format("2006-01-02 15:04 MST"),
		Address:       joinAddress(rec.Address),
		DeliverySpeed: rec.DeliverySpeed,
		Notes:         rec.Notes,
		Mismatch:      rec.AmountMismatch,
	}
	v.Subject = "New order " + rec.Reference
	if v.Name != "" {
		v.Subject += " from " + v.Name
	}
	for _, it := range rec.Items {
		v.Items = append(v.Items, itemLine{Name: it.Name, Quantity: it.Quantity, Price: it.UnitPrice().StringFixed(2)})
	}
	for _, m := range rec.Measurements {
		pairs := make([]string, 0, len(m.Values))
		for _, k := range sortedKeys(m.Values) {
			pairs = append(pairs, k+"="+m.Values[k])
		}
		name := m.Name
		if m.Unit != "" {
			name += " (" + m.Unit + ")"
		}
		v.Measurements = append(v.Measurements, measurementLine{Name: name, Values: strings.Join(pairs, ", ")})
	}
	return v
}

func joinAddress(a model.Address) string {
	parts := make([]string, 0, 5)
	for _, p := range []string{a.Street, a.City, a.State, a.Zip, a.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var funcs = map[string]any{"itoa": strconv.Itoa}

var plainTmpl = texttemplate.Must(texttemplate.New("plain").Funcs(funcs).Parse(`New order received
{{if .Mismatch}}
CHECK AMOUNT: the amount paid does not match the order total.
{{end}}
Reference: {{.Reference}}
Customer:  {{.Name}} <{{.Email}}>{{if .Phone}} / {{.Phone}}{{end}}
Total:     {{.Total}}
Payment:   {{.PaymentStatus}} ({{.PaymentMethod}})
Placed:    {{.OrderedAt}}

Items:
{{range .Items}}  - {{.Name}} x{{itoa .Quantity}} @ {{.Price}}
{{end}}{{if .Measurements}}
Measurements:
{{range .Measurements}}  - {{.Name}}: {{.Values}}
{{end}}{{end}}
Delivery:  {{.Address}}{{if .DeliverySpeed}} [{{.DeliverySpeed}}]{{end}}
{{if .Notes}}Notes:     {{.Notes}}
{{end}}`))

var htmlTmpl = htmltemplate.Must(htmltemplate.New("html").Funcs(funcs).Parse(`<h2>New order {{.Reference}}</h2>
{{if .Mismatch}}<p style="color:#b00"><strong>Check amount:</strong> the amount paid does not match the order total.</p>
{{end}}<p><strong>{{.Name}}</strong> &lt;{{.Email}}&gt;{{if .Phone}}<br>{{.Phone}}{{end}}</p>
<p>Total: <strong>{{.Total}}</strong><br>Payment: {{.PaymentStatus}} ({{.PaymentMethod}})<br>Placed: {{.OrderedAt}}</p>
<table border="1" cellpadding="4" cellspacing="0">
<tr><th>Item</th><th>Qty</th><th>Price</th></tr>
{{range .Items}}<tr><td>{{.Name}}</td><td>{{itoa .Quantity}}</td><td>{{.Price}}</td></tr>
{{end}}</table>
{{if .Measurements}}<h3>Measurements</h3>
<ul>{{range .Measurements}}<li><strong>{{.Name}}</strong>: {{.Values}}</li>{{end}}</ul>
{{end}}<p>Deliver to: {{.Address}}{{if .DeliverySpeed}} ({{.DeliverySpeed}}){{end}}</p>
{{if .Notes}}<p>Notes: {{.Notes}}</p>{{end}}`))
