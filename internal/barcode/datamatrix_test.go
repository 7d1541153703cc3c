package barcode

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/datamatrix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const payload = "0100012345678905" + "3103001250" + "11240115" + "17250115" +
	"10L1\x1d" + "422840\x1d" + "91US01\x1d" + "92Widget\x1d" + "21W-100"

func decode(t *testing.T, raw []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	return img
}

func TestRender_SquarePNG(t *testing.T) {
	d := NewDataMatrix(240)
	raw, err := d.Render(context.Background(), []byte(payload))
	require.NoError(t, err)

	img := decode(t, raw)
	b := img.Bounds()
	assert.Equal(t, b.Dx(), b.Dy())
	assert.GreaterOrEqual(t, b.Dx(), 240)

	var dark, light int
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			if g.Y < 128 {
				dark++
			} else {
				light++
			}
		}
	}
	assert.NotZero(t, dark)
	assert.NotZero(t, light)
}

func TestRender_Deterministic(t *testing.T) {
	d := NewDataMatrix(0)
	assert.Equal(t, DefaultPixels, d.Pixels())

	a, err := d.Render(context.Background(), []byte(payload))
	require.NoError(t, err)
	b, err := d.Render(context.Background(), []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := d.Render(context.Background(), []byte("0100012345678905"))
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestRender_Errors(t *testing.T) {
	d := NewDataMatrix(100)

	_, err := d.Render(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyPayload)

	_, err = d.Render(context.Background(), []byte{'0', '1', 0xe9})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Render(ctx, []byte(payload))
	assert.ErrorIs(t, err, context.Canceled)
}

func scan(t *testing.T, raw []byte) *gozxing.Result {
	t.Helper()
	bmp, err := gozxing.NewBinaryBitmapFromImage(decode(t, raw))
	require.NoError(t, err)
	hints := map[gozxing.DecodeHintType]interface{}{gozxing.DecodeHintType_PURE_BARCODE: true}
	res, err := datamatrix.NewDataMatrixReader().Decode(bmp, hints)
	require.NoError(t, err)
	return res
}

func TestRender_ScansAsGS1(t *testing.T) {
	for _, px := range []int{10, 120, 300} {
		raw, err := NewDataMatrix(px).Render(context.Background(), []byte(payload))
		require.NoError(t, err)

		res := scan(t, raw)
		assert.Equal(t, "]d2", res.GetResultMetadata()[gozxing.ResultMetadataType_SYMBOLOGY_IDENTIFIER], "px=%d", px)
		// Readers report each FNC1, the leading one included, as GS.
		assert.Equal(t, "\x1d"+payload, res.GetText(), "px=%d", px)
	}
}

func TestGS1Codewords(t *testing.T) {
	got := gs1Codewords([]byte("0112\x1d10A"))
	assert.Equal(t, []byte{232, 130 + 1, 130 + 12, 232, 130 + 10, 'A' + 1}, got)

	// An odd trailing digit falls back to single character encodation.
	assert.Equal(t, []byte{232, 130 + 12, '3' + 1}, gs1Codewords([]byte("123")))
}

func TestPadCodewords(t *testing.T) {
	assert.Equal(t, []byte{232, 129, 70}, padCodewords([]byte{232}, 3))
	assert.Equal(t, []byte{232, 131}, padCodewords([]byte{232, 131}, 2))
}
