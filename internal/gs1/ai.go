package gs1

import "fmt"

// Kind is the character set an AI's data field is drawn from.
type Kind int

const (
	// Numeric fields accept the digits 0-9 only.
	Numeric Kind = iota
	// CSET82 fields accept the GS1 AI encodable character set 82.
	CSET82
)

func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case CSET82:
		return "cset82"
	default:
		return "unknown"
	}
}

// AI describes one GS1 Application Identifier.
type AI struct {
	Code  string
	Title string
	Kind  Kind
	// Fixed is the exact data length; zero for variable-length AIs.
	Fixed int
	// Max is the maximum data length of a variable-length AI.
	Max int
	// CheckDigit marks AIs whose last digit is a GS1 mod-10 check digit.
	CheckDigit bool
}

// Application Identifiers supported by the label encoder.
var (
	GTIN             = AI{Code: "01", Title: "GTIN", Kind: Numeric, Fixed: 14, CheckDigit: true}
	BatchLot         = AI{Code: "10", Title: "BATCH/LOT", Kind: CSET82, Max: 20}
	ProdDate         = AI{Code: "11", Title: "PROD DATE", Kind: Numeric, Fixed: 6}
	ExpiryDate       = AI{Code: "17", Title: "USE BY OR EXPIRY", Kind: Numeric, Fixed: 6}
	Serial           = AI{Code: "21", Title: "SERIAL", Kind: CSET82, Max: 20}
	VarCount         = AI{Code: "30", Title: "VAR. COUNT", Kind: Numeric, Max: 8}
	NetWeightKg      = AI{Code: "3103", Title: "NET WEIGHT (kg)", Kind: Numeric, Fixed: 6}
	OrderNumber      = AI{Code: "400", Title: "ORDER NUMBER", Kind: CSET82, Max: 30}
	OriginCountry    = AI{Code: "422", Title: "ORIGIN", Kind: Numeric, Fixed: 3}
	FunctionalStatus = AI{Code: "7021", Title: "FUNC STAT", Kind: CSET82, Max: 20}
	RevisionStatus   = AI{Code: "7022", Title: "REV STAT", Kind: CSET82, Max: 20}
	Internal91       = AI{Code: "91", Title: "INTERNAL", Kind: CSET82, Max: 90}
	Internal92       = AI{Code: "92", Title: "INTERNAL", Kind: CSET82, Max: 90}
)

var byCode = map[string]AI{}

func init() {
	for _, ai := range []AI{
		GTIN, BatchLot, ProdDate, ExpiryDate, Serial, VarCount, NetWeightKg,
		OrderNumber, OriginCountry, FunctionalStatus, RevisionStatus,
		Internal91, Internal92,
	} {
		byCode[ai.Code] = ai
	}
}

// Lookup returns the supported AI with the given code.
func Lookup(code string) (AI, bool) {
	ai, ok := byCode[code]
	return ai, ok
}

// predefinedLength lists the two-digit AI prefixes whose element strings
// have a length fixed by the GS1 General Specifications, and so never need
// a separator after them.
var predefinedLength = map[string]bool{
	"00": true, "01": true, "02": true, "03": true, "04": true,
	"11": true, "12": true, "13": true, "14": true, "15": true,
	"16": true, "17": true, "18": true, "19": true, "20": true,
	"23": true,
	"31": true, "32": true, "33": true, "34": true, "35": true, "36": true,
	"41": true,
}

// Predefined reports whether the AI is in the predefined-length table.
// A fixed data length alone is not enough: AI 422 is always three digits
// but still requires a separator when another element follows.
func (a AI) Predefined() bool {
	return len(a.Code) >= 2 && predefinedLength[a.Code[:2]]
}

// MaxLen returns the longest permitted data length.
func (a AI) MaxLen() int {
	if a.Fixed > 0 {
		return a.Fixed
	}
	return a.Max
}

func (a AI) String() string {
	return fmt.Sprintf("(%s) %s", a.Code, a.Title)
}
