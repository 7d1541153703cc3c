// Package barcode renders GS1 element strings as DataMatrix symbols.
package barcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/datamatrix/encoder"

	"labelgen/internal/gs1"
)

// ErrEmptyPayload is returned for a zero-length element string.
var ErrEmptyPayload = errors.New("empty barcode payload")

// DefaultPixels is the default edge length of the rendered symbol.
const DefaultPixels = 300

// ECC 200 ASCII encodation codewords.
const (
	codewordFNC1      = 232
	codewordPad       = 129
	codewordDigitPair = 130
	quietZoneModules  = 1
)

// DataMatrix renders square GS1 DataMatrix symbols as PNG.
type DataMatrix struct {
	pixels int
}

// NewDataMatrix returns a renderer producing px by px images.
func NewDataMatrix(px int) *DataMatrix {
	if px <= 0 {
		px = DefaultPixels
	}
	return &DataMatrix{pixels: px}
}

// Render encodes payload as a GS1 DataMatrix: the symbol starts with FNC1
// and every group separator in payload becomes an FNC1 field separator.
func (d *DataMatrix) Render(ctx context.Context, payload []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	for _, b := range payload {
		if b > 0x7f {
			return nil, fmt.Errorf("payload byte 0x%02x is outside ASCII", b)
		}
	}

	matrix, err := d.encode(gs1Codewords(payload))
	if err != nil {
		return nil, fmt.Errorf("encode datamatrix: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, matrix); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Pixels reports the configured edge length.
func (d *DataMatrix) Pixels() int { return d.pixels }

// gs1Codewords applies ASCII encodation with digit pairs, a leading FNC1
// and FNC1 in place of each group separator.
func gs1Codewords(payload []byte) []byte {
	cw := make([]byte, 0, len(payload)+1)
	cw = append(cw, codewordFNC1)
	for i := 0; i < len(payload); i++ {
		c := payload[i]
		switch {
		case c == gs1.GroupSeparator:
			cw = append(cw, codewordFNC1)
		case isDigit(c) && i+1 < len(payload) && isDigit(payload[i+1]):
			cw = append(cw, byte(codewordDigitPair+int(c-'0')*10+int(payload[i+1]-'0')))
			i++
		default:
			cw = append(cw, c+1)
		}
	}
	return cw
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// padCodewords fills the symbol's data capacity: one pad codeword, then
// pads scrambled with the 253-state randomiser.
func padCodewords(cw []byte, capacity int) []byte {
	if len(cw) < capacity {
		cw = append(cw, codewordPad)
	}
	for len(cw) < capacity {
		pos := len(cw) + 1
		v := codewordPad + ((149*pos)%253 + 1)
		if v > 254 {
			v -= 254
		}
		cw = append(cw, byte(v))
	}
	return cw
}

// encode picks the smallest square symbol for cw, adds Reed-Solomon
// codewords, places them and scales the result to the configured size.
func (d *DataMatrix) encode(cw []byte) (*gozxing.BitMatrix, error) {
	info, err := encoder.SymbolInfo_Lookup(len(cw), encoder.SymbolShapeHint_FORCE_SQUARE, nil, nil, true)
	if err != nil {
		return nil, err
	}
	full, err := encoder.ErrorCorrection_EncodeECC200(padCodewords(cw, info.GetDataCapacity()), info)
	if err != nil {
		return nil, err
	}
	placement := encoder.NewDefaultPlacement(full, info.GetSymbolDataWidth(), info.GetSymbolDataHeight())
	placement.Place()
	return scaleModules(symbolModules(placement, info), d.pixels)
}

// symbolModules adds finder and timing patterns around each data region.
func symbolModules(placement *encoder.DefaultPlacement, info *encoder.SymbolInfo) [][]bool {
	modules := make([][]bool, info.GetSymbolHeight())
	for i := range modules {
		modules[i] = make([]bool, info.GetSymbolWidth())
	}

	regionW, regionH := info.GetMatrixWidth(), info.GetMatrixHeight()
	row := 0
	for y := 0; y < info.GetSymbolDataHeight(); y++ {
		if y%regionH == 0 {
			for x := range modules[row] {
				modules[row][x] = x%2 == 0
			}
			row++
		}
		col := 0
		for x := 0; x < info.GetSymbolDataWidth(); x++ {
			if x%regionW == 0 {
				modules[row][col] = true
				col++
			}
			modules[row][col] = placement.GetBit(x, y)
			col++
			if x%regionW == regionW-1 {
				modules[row][col] = y%2 == 0
				col++
			}
		}
		row++
		if y%regionH == regionH-1 {
			for x := range modules[row] {
				modules[row][x] = true
			}
			row++
		}
	}
	return modules
}

// scaleModules centres the symbol with a quiet zone on a px by px matrix,
// growing the matrix when px is too small for one pixel per module.
func scaleModules(modules [][]bool, px int) (*gozxing.BitMatrix, error) {
	h, w := len(modules), len(modules[0])
	span := w + 2*quietZoneModules
	if h+2*quietZoneModules > span {
		span = h + 2*quietZoneModules
	}
	size := px
	if size < span {
		size = span
	}
	scale := size / span

	out, err := gozxing.NewSquareBitMatrix(size)
	if err != nil {
		return nil, err
	}
	left := (size - w*scale) / 2
	top := (size - h*scale) / 2
	for y, line := range modules {
		for x, dark := range line {
			if !dark {
				continue
			}
			if err := out.SetRegion(left+x*scale, top+y*scale, scale, scale); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
