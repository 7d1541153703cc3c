package label

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"labelgen/internal/gs1"
)

var maxNetWeight = decimal.NewFromInt(999999)

// Encode builds the GS1 element string for req. It is a pure function of
// its input and fails with *EncodingError on the first invalid field.
func Encode(req Request) ([]byte, error) {
	els, err := Elements(req)
	if err != nil {
		return nil, err
	}
	return gs1.Concatenate(els), nil
}

// Elements validates req and returns its element strings in encoding
// order: 01, 3103, 11, 17, 10, 422, 91, 92, 21, 30, 400, 7021, 7022.
func Elements(req Request) ([]gs1.Element, error) {
	b := &builder{}

	if req.GTIN == "" {
		return nil, &EncodingError{Field: "gtin", Reason: gs1.ReasonMissingRequired}
	}
	b.add("gtin", gs1.GTIN, req.GTIN)

	if req.NetWeight.Valid {
		v, err := netWeightField(req.NetWeight.Decimal)
		if err != nil {
			b.fail(err)
		}
		b.add("net_weight", gs1.NetWeightKg, v)
	}

	if !req.MfgDate.IsZero() {
		b.add("mfg_date", gs1.ProdDate, yymmdd(req.MfgDate))
	}
	if !req.ExpDate.IsZero() {
		if !req.MfgDate.IsZero() && req.ExpDate.Before(req.MfgDate) {
			b.fail(&EncodingError{Field: "exp_date", Reason: gs1.ReasonInvalidValue, Detail: "expiry date precedes manufacture date"})
		}
		b.add("exp_date", gs1.ExpiryDate, yymmdd(req.ExpDate))
	}

	b.addOptional("lot_number", gs1.BatchLot, req.LotNumber)
	b.addOptional("country_of_origin", gs1.OriginCountry, req.CountryOfOrigin)
	b.addOptional("manufacturer_location", gs1.Internal91, req.ManufacturerLocation)
	b.addOptional("product_name", gs1.Internal92, req.ProductName)
	b.addOptional("sku", gs1.Serial, req.SKU)

	if req.Quantity < 0 {
		b.fail(&EncodingError{Field: "quantity", Reason: gs1.ReasonInvalidValue, Detail: "must not be negative"})
	}
	if req.Quantity > 0 {
		// AI 30 is variable length; no zero padding.
		b.add("quantity", gs1.VarCount, strconv.Itoa(req.Quantity))
	}

	b.addOptional("customer_po", gs1.OrderNumber, req.CustomerPO)
	b.addOptional("customer_part", gs1.FunctionalStatus, req.CustomerPart)
	b.addOptional("revision", gs1.RevisionStatus, req.Revision)

	if b.err != nil {
		return nil, b.err
	}
	return b.els, nil
}

type builder struct {
	els []gs1.Element
	err error
}

func (b *builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *builder) add(field string, ai gs1.AI, value string) {
	if b.err != nil {
		return
	}
	el, err := gs1.NewElement(ai, value)
	if err != nil {
		b.err = fieldError(field, err)
		return
	}
	b.els = append(b.els, el)
}

func (b *builder) addOptional(field string, ai gs1.AI, value string) {
	if value != "" {
		b.add(field, ai, value)
	}
}

// netWeightField renders kilograms as the six digit AI 3103 value.
func netWeightField(kg decimal.Decimal) (string, error) {
	if !kg.IsPositive() {
		return "", &EncodingError{Field: "net_weight", Reason: gs1.ReasonInvalidValue, Detail: "must be positive"}
	}
	grams := kg.Shift(3)
	if !grams.Equal(grams.Truncate(0)) {
		return "", &EncodingError{Field: "net_weight", Reason: gs1.ReasonInvalidValue, Detail: "more than 3 decimal places"}
	}
	if grams.GreaterThan(maxNetWeight) {
		return "", &EncodingError{Field: "net_weight", Reason: gs1.ReasonTooLong, Detail: "exceeds 999.999 kg"}
	}
	return fmt.Sprintf("%06d", grams.IntPart()), nil
}

func yymmdd(t time.Time) string {
	return t.Format("060102")
}
