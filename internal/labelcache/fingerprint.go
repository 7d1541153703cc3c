package labelcache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"strconv"

	"labelgen/internal/label"
)

// Fingerprint is a stable digest of every request input that affects the
// rendered label. Two requests with equal fingerprints produce identical
// bytes under the same rendering configuration; see Cache.Fingerprint.
func Fingerprint(req label.Request) string {
	return fingerprint(req, "")
}

func fingerprint(req label.Request, settings string) string {
	h := sha256.New()
	field := func(s string) { writeField(h, []byte(s)) }

	field("v1")
	field(req.GTIN)
	if req.NetWeight.Valid {
		field(req.NetWeight.Decimal.StringFixed(3))
	} else {
		field("")
	}
	field(dateKey(req.MfgDate.IsZero(), req.MfgDate.Format("2006-01-02")))
	field(dateKey(req.ExpDate.IsZero(), req.ExpDate.Format("2006-01-02")))
	field(req.LotNumber)
	field(req.CountryOfOrigin)
	field(req.ManufacturerLocation)
	field(req.ProductName)
	field(req.SKU)
	field(strconv.Itoa(req.Quantity))
	field(req.CustomerPO)
	field(req.CustomerPart)
	field(req.Revision)
	field(req.Note)

	field(string(req.TemplateKind))
	if len(req.Template) > 0 {
		sum := sha256.Sum256(req.Template)
		writeField(h, sum[:])
	} else {
		field("")
	}
	field(req.DefaultTemplate)
	if settings != "" {
		field(settings)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// writeField length-prefixes b so adjacent fields cannot run together.
func writeField(h hash.Hash, b []byte) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(b)))
	h.Write(n[:])
	h.Write(b)
}

func dateKey(zero bool, s string) string {
	if zero {
		return ""
	}
	return s
}
