package label

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelgen/internal/gs1"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func widgetRequest() Request {
	return Request{
		GTIN:                 "00012345678905",
		NetWeight:            decimal.NewNullDecimal(decimal.RequireFromString("1.250")),
		MfgDate:              date(2024, time.January, 15),
		ExpDate:              date(2025, time.January, 15),
		LotNumber:            "L1",
		CountryOfOrigin:      "840",
		ManufacturerLocation: "US01",
		ProductName:          "Widget",
		SKU:                  "W-100",
	}
}

func TestEncode_EndToEndOrder(t *testing.T) {
	out, err := Encode(widgetRequest())
	require.NoError(t, err)

	parts := []string{
		"0100012345678905",
		"3103001250",
		"11240115",
		"17250115",
		"10L1",
		"422840",
		"91US01",
		"92Widget",
		"21W-100",
	}
	pos := 0
	for _, p := range parts {
		i := bytes.Index(out[pos:], []byte(p))
		require.GreaterOrEqualf(t, i, 0, "segment %q missing or out of order in %q", p, gs1.Printable(out))
		pos += i + len(p)
	}

	want := "0100012345678905" + "3103001250" + "11240115" + "17250115" +
		"10L1\x1d" + "422840\x1d" + "91US01\x1d" + "92Widget\x1d" + "21W-100"
	assert.Equal(t, want, string(out))
}

func TestEncode_Deterministic(t *testing.T) {
	a, err := Encode(widgetRequest())
	require.NoError(t, err)
	b, err := Encode(widgetRequest())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEncode_LotFollowedByOriginKeepsSeparator(t *testing.T) {
	out, err := Encode(Request{GTIN: "00012345678905", LotNumber: "LOT123", CountryOfOrigin: "840", SKU: "S1"})
	require.NoError(t, err)
	assert.Contains(t, string(out), "10LOT123\x1d422840\x1d21S1")
}

func TestEncode_SupplementedFieldsAfterCore(t *testing.T) {
	req := Request{
		GTIN:         "00069766967842",
		SKU:          "X-MC-CO-EMI-000-01",
		Quantity:     5,
		CustomerPO:   "123456789",
		CustomerPart: "P-77",
		Revision:     "01",
	}
	out, err := Encode(req)
	require.NoError(t, err)
	assert.Equal(t, "0100069766967842"+"21X-MC-CO-EMI-000-01\x1d"+"305\x1d"+"400123456789\x1d"+"7021P-77\x1d"+"702201", string(out))
}

func TestEncode_FieldErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
		field  string
		reason gs1.Reason
	}{
		{"missing gtin", func(r *Request) { r.GTIN = "" }, "gtin", gs1.ReasonMissingRequired},
		{"bad gtin check", func(r *Request) { r.GTIN = "00012345678904" }, "gtin", gs1.ReasonInvalidCheckDigit},
		{"lot too long", func(r *Request) { r.LotNumber = strings.Repeat("A", 21) }, "lot_number", gs1.ReasonTooLong},
		{"lot bad chars", func(r *Request) { r.LotNumber = "EN 2501" }, "lot_number", gs1.ReasonInvalidCharacters},
		{"sku too long", func(r *Request) { r.SKU = strings.Repeat("9", 21) }, "sku", gs1.ReasonTooLong},
		{"product name too long", func(r *Request) { r.ProductName = strings.Repeat("w", 91) }, "product_name", gs1.ReasonTooLong},
		{"location bad chars", func(r *Request) { r.ManufacturerLocation = "US#01" }, "manufacturer_location", gs1.ReasonInvalidCharacters},
		{"origin letters", func(r *Request) { r.CountryOfOrigin = "USA" }, "country_of_origin", gs1.ReasonInvalidCharacters},
		{"weight too heavy", func(r *Request) { r.NetWeight = decimal.NewNullDecimal(decimal.NewFromInt(1000)) }, "net_weight", gs1.ReasonTooLong},
		{"weight too precise", func(r *Request) { r.NetWeight = decimal.NewNullDecimal(decimal.RequireFromString("1.2345")) }, "net_weight", gs1.ReasonInvalidValue},
		{"weight zero", func(r *Request) { r.NetWeight = decimal.NewNullDecimal(decimal.Zero) }, "net_weight", gs1.ReasonInvalidValue},
		{"expiry before mfg", func(r *Request) { r.ExpDate = date(2023, time.December, 31) }, "exp_date", gs1.ReasonInvalidValue},
		{"po too long", func(r *Request) { r.CustomerPO = strings.Repeat("1", 31) }, "customer_po", gs1.ReasonTooLong},
		{"negative quantity", func(r *Request) { r.Quantity = -1 }, "quantity", gs1.ReasonInvalidValue},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := widgetRequest()
			tc.mutate(&req)
			_, err := Encode(req)
			var ee *EncodingError
			require.True(t, errors.As(err, &ee), "expected EncodingError, got %v", err)
			assert.Equal(t, tc.field, ee.Field)
			assert.Equal(t, tc.reason, ee.Reason)

			stage, ok := StageOf(err)
			assert.True(t, ok)
			assert.Equal(t, StageEncoding, stage)
		})
	}
}

func TestEncode_FirstViolationWins(t *testing.T) {
	req := widgetRequest()
	req.LotNumber = "bad lot"
	req.SKU = strings.Repeat("X", 40)
	_, err := Encode(req)
	var ee *EncodingError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "lot_number", ee.Field)
}

func TestInputRequest_Coercion(t *testing.T) {
	in := Input{
		GTIN:                 " 0012345678905 ",
		NetWeight:            "1250 g",
		MfgDate:              "2024-01-15",
		ExpDate:              "2025-01-15",
		LotNumber:            "L1",
		CountryOfOrigin:      "US",
		ManufacturerLocation: "US01",
		ProductName:          "Widget",
		SKU:                  "W-100",
		Quantity:             "3",
	}
	req, err := in.Request()
	require.NoError(t, err)

	assert.Equal(t, "00012345678905", req.GTIN)
	require.True(t, req.NetWeight.Valid)
	assert.True(t, req.NetWeight.Decimal.Equal(decimal.RequireFromString("1.25")))
	assert.Equal(t, date(2024, time.January, 15), req.MfgDate)
	assert.Equal(t, "840", req.CountryOfOrigin)
	assert.Equal(t, 3, req.Quantity)

	out, err := Encode(req)
	require.NoError(t, err)
	assert.Contains(t, string(out), "3103001250")
}

func TestInputRequest_Errors(t *testing.T) {
	tests := []struct {
		name  string
		in    Input
		field string
	}{
		{"bad weight", Input{GTIN: "00012345678905", NetWeight: "heavy"}, "net_weight"},
		{"bad mfg date", Input{GTIN: "00012345678905", MfgDate: "15/01/2024"}, "mfg_date"},
		{"bad exp date", Input{GTIN: "00012345678905", ExpDate: "2025-13-01"}, "exp_date"},
		{"unknown country", Input{GTIN: "00012345678905", CountryOfOrigin: "Atlantis"}, "country_of_origin"},
		{"bad quantity", Input{GTIN: "00012345678905", Quantity: "many"}, "quantity"},
		{"zero quantity", Input{GTIN: "00012345678905", Quantity: "0"}, "quantity"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.in.Request()
			var ee *EncodingError
			require.True(t, errors.As(err, &ee), "expected EncodingError, got %v", err)
			assert.Equal(t, tc.field, ee.Field)
		})
	}
}

func TestParseNetWeight(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.250kg", "1.25"},
		{"1.250 KG", "1.25"},
		{"750g", "0.75"},
		{"2", "2"},
	}
	for _, tc := range tests {
		got, err := ParseNetWeight(tc.in)
		require.NoError(t, err, tc.in)
		assert.Truef(t, got.Equal(decimal.RequireFromString(tc.want)), "%s => %s", tc.in, got)
	}
}

func TestParseCountry(t *testing.T) {
	for _, in := range []string{"840", "US", "USA"} {
		got, err := ParseCountry(in)
		require.NoError(t, err, in)
		assert.Equal(t, "840", got, in)
	}
	got, err := ParseCountry("JP")
	require.NoError(t, err)
	assert.Equal(t, "392", got)

	_, err = ParseCountry("999")
	assert.Error(t, err)
}

func TestDisplayLines(t *testing.T) {
	lines := widgetRequest().DisplayLines()
	assert.Contains(t, lines, "PRODUCT: Widget")
	assert.Contains(t, lines, "NET WT: 1.250 KG")
	assert.Contains(t, lines, "MFG. DATE: 2024-01-15")
	assert.Contains(t, lines, "LOT #: L1")
	for _, l := range lines {
		assert.False(t, strings.HasPrefix(l, "QUANTITY"), "absent quantity must not be printed")
	}
	assert.Empty(t, Request{}.DisplayLines())

	req := Request{Note: strings.Repeat("n", 50)}
	assert.Equal(t, []string{"NOTE: " + strings.Repeat("n", 40)}, req.DisplayLines())
}

func TestErrorStages(t *testing.T) {
	cause := errors.New("boom")
	for _, tc := range []struct {
		err   error
		stage Stage
	}{
		{&RenderingError{Err: cause}, StageRendering},
		{&CompositionError{Err: cause}, StageComposition},
		{&CacheError{Op: "set", Err: cause}, StageCache},
	} {
		stage, ok := StageOf(tc.err)
		require.True(t, ok)
		assert.Equal(t, tc.stage, stage)
		assert.ErrorIs(t, tc.err, cause)
	}

	_, ok := StageOf(cause)
	assert.False(t, ok)
}
