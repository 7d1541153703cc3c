// Package label models a product label request and turns it into a GS1
// element string.
package label

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/biter777/countries"
	"github.com/shopspring/decimal"

	"labelgen/internal/gs1"
)

// TemplateKind tells how the template blob is turned into a PDF page.
type TemplateKind string

const (
	TemplatePDF  TemplateKind = "pdf"
	TemplateHTML TemplateKind = "html"
)

// Request is a fully typed product label request. Zero values mean the
// field is absent; only GTIN is required.
type Request struct {
	GTIN string
	// NetWeight is in kilograms.
	NetWeight            decimal.NullDecimal
	MfgDate              time.Time
	ExpDate              time.Time
	LotNumber            string
	CountryOfOrigin      string // ISO 3166-1 numeric, three digits
	ManufacturerLocation string
	ProductName          string
	SKU                  string
	Quantity             int
	CustomerPO           string
	CustomerPart         string
	Revision             string
	// Note is printed on the label only; it is not encoded.
	Note string

	Template     []byte
	TemplateKind TemplateKind
	// DefaultTemplate identifies the default template source when no
	// template is uploaded.
	DefaultTemplate string
}

const (
	dateLayout   = "2006-01-02"
	maxNoteRunes = 40
)

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// DisplayLines returns the text block printed beside the barcode.
func (r Request) DisplayLines() []string {
	var lines []string
	add := func(label, value string) {
		if value != "" {
			lines = append(lines, label+": "+value)
		}
	}

	add("PRODUCT", r.ProductName)
	add("SKU", r.SKU)
	add("LOT #", r.LotNumber)
	if r.NetWeight.Valid {
		add("NET WT", r.NetWeight.Decimal.StringFixed(3)+" KG")
	}
	if !r.MfgDate.IsZero() {
		add("MFG. DATE", r.MfgDate.Format(dateLayout))
	}
	if !r.ExpDate.IsZero() {
		add("EXP. DATE", r.ExpDate.Format(dateLayout))
	}
	add("COO", CountryName(r.CountryOfOrigin))
	add("MFG. LOC", r.ManufacturerLocation)
	if r.Quantity > 0 {
		add("QUANTITY", strconv.Itoa(r.Quantity))
	}
	add("PO #", r.CustomerPO)
	add("PART #", r.CustomerPart)
	add("REV #", r.Revision)
	add("NOTE", truncateRunes(r.Note, maxNoteRunes))
	return lines
}

// CountryName returns the English short name for an ISO numeric code, or
// the code itself when it is unknown.
func CountryName(numeric string) string {
	if numeric == "" {
		return ""
	}
	n, err := strconv.Atoi(numeric)
	if err != nil {
		return numeric
	}
	c := countries.ByNumeric(n)
	if c == countries.Unknown {
		return numeric
	}
	return c.String()
}

// Input carries raw form or JSON values before coercion.
type Input struct {
	GTIN                 string `json:"gtin" form:"gtin"`
	NetWeight            string `json:"net_weight" form:"net_weight"`
	MfgDate              string `json:"mfg_date" form:"mfg_date"`
	ExpDate              string `json:"exp_date" form:"exp_date"`
	LotNumber            string `json:"lot_number" form:"lot_number"`
	CountryOfOrigin      string `json:"country_of_origin" form:"country_of_origin"`
	ManufacturerLocation string `json:"manufacturer_location" form:"manufacturer_location"`
	ProductName          string `json:"product_name" form:"product_name"`
	SKU                  string `json:"sku" form:"sku"`
	Quantity             string `json:"quantity" form:"quantity"`
	CustomerPO           string `json:"customer_po" form:"customer_po"`
	CustomerPart         string `json:"customer_part" form:"customer_part"`
	Revision             string `json:"revision" form:"revision"`
	Note                 string `json:"note" form:"note"`
	Filename             string `json:"filename" form:"filename"`
}

// Request coerces the raw input into a typed Request. This is the only
// place strings are parsed; Encode never sees raw form values.
func (in Input) Request() (Request, error) {
	req := Request{
		GTIN:                 normalizeGTIN(strings.TrimSpace(in.GTIN)),
		LotNumber:            strings.TrimSpace(in.LotNumber),
		ManufacturerLocation: strings.TrimSpace(in.ManufacturerLocation),
		ProductName:          strings.TrimSpace(in.ProductName),
		SKU:                  strings.TrimSpace(in.SKU),
		CustomerPO:           strings.TrimSpace(in.CustomerPO),
		CustomerPart:         strings.TrimSpace(in.CustomerPart),
		Revision:             strings.TrimSpace(in.Revision),
		Note:                 strings.TrimSpace(in.Note),
	}

	if s := strings.TrimSpace(in.NetWeight); s != "" {
		kg, err := ParseNetWeight(s)
		if err != nil {
			return Request{}, err
		}
		req.NetWeight = decimal.NullDecimal{Decimal: kg, Valid: true}
	}

	var err error
	if req.MfgDate, err = parseDate("mfg_date", in.MfgDate); err != nil {
		return Request{}, err
	}
	if req.ExpDate, err = parseDate("exp_date", in.ExpDate); err != nil {
		return Request{}, err
	}

	if s := strings.TrimSpace(in.CountryOfOrigin); s != "" {
		if req.CountryOfOrigin, err = ParseCountry(s); err != nil {
			return Request{}, err
		}
	}

	if s := strings.TrimSpace(in.Quantity); s != "" {
		q, err := strconv.Atoi(s)
		if err != nil {
			return Request{}, &EncodingError{Field: "quantity", Reason: gs1.ReasonInvalidFormat, Detail: "not an integer"}
		}
		if q < 1 {
			return Request{}, &EncodingError{Field: "quantity", Reason: gs1.ReasonInvalidValue, Detail: "must be at least 1"}
		}
		req.Quantity = q
	}
	return req, nil
}

// ParseNetWeight parses "1.250kg", "1250 g" or a bare kilogram number.
func ParseNetWeight(s string) (decimal.Decimal, error) {
	v := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	scale := int32(0)
	switch {
	case strings.HasSuffix(v, "kg"):
		v = strings.TrimSuffix(v, "kg")
	case strings.HasSuffix(v, "g"):
		v = strings.TrimSuffix(v, "g")
		scale = -3
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, &EncodingError{Field: "net_weight", Reason: gs1.ReasonInvalidFormat, Detail: fmt.Sprintf("cannot parse %q as a weight", s)}
	}
	return d.Shift(scale), nil
}

// ParseCountry resolves an ISO 3166-1 numeric, alpha-2, alpha-3 code or
// English name to the three digit numeric code used by AI 422.
func ParseCountry(s string) (string, error) {
	var c countries.CountryCode
	if n, err := strconv.Atoi(s); err == nil {
		c = countries.ByNumeric(n)
	} else {
		c = countries.ByName(s)
	}
	if c == countries.Unknown {
		return "", &EncodingError{Field: "country_of_origin", Reason: gs1.ReasonInvalidValue, Detail: fmt.Sprintf("unknown country %q", s)}
	}
	return fmt.Sprintf("%03d", int(c)), nil
}

func parseDate(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, &EncodingError{Field: field, Reason: gs1.ReasonInvalidFormat, Detail: "expected YYYY-MM-DD"}
	}
	return t, nil
}

// normalizeGTIN left-pads GTIN-8, GTIN-12 and GTIN-13 to 14 digits.
func normalizeGTIN(s string) string {
	switch len(s) {
	case 8, 12, 13:
		for i := 0; i < len(s); i++ {
			if s[i] < '0' || s[i] > '9' {
				return s
			}
		}
		return strings.Repeat("0", 14-len(s)) + s
	}
	return s
}
