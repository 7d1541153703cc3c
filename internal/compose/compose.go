// Package compose stamps the label overlay onto a one page PDF template.
package compose

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

const pointsPerMM = 72 / 25.4

var (
	// ErrNoPages is returned for a template without pages.
	ErrNoPages = errors.New("template has no pages")
	// ErrNoBarcode is returned when the overlay carries no symbol image.
	ErrNoBarcode = errors.New("overlay has no barcode image")
)

func init() {
	api.DisableConfigDir()
}

// Layout places the overlay on the page. All distances are millimetres
// from the page's bottom-left corner except TextTopMM, which is measured
// down from the top edge.
type Layout struct {
	PageWidthMM   float64
	PageHeightMM  float64
	BarcodeXMM    float64
	BarcodeYMM    float64
	BarcodeSizeMM float64
	TextXMM       float64
	TextTopMM     float64
	Font          string
	FontSize      int
}

// DefaultLayout fits 152.5 x 101.6 mm label stock.
func DefaultLayout() Layout {
	return Layout{
		PageWidthMM:   152.5,
		PageHeightMM:  101.6,
		BarcodeXMM:    121.5,
		BarcodeYMM:    5.7,
		BarcodeSizeMM: 25,
		TextXMM:       5,
		TextTopMM:     28.6,
		Font:          "Helvetica",
		FontSize:      14,
	}
}

// Overlay is what gets stamped on the template.
type Overlay struct {
	Lines []string
	// Barcode is a square PNG of BarcodePixels edge length.
	Barcode       []byte
	BarcodePixels int
}

// Compositor merges overlays into templates with pdfcpu.
type Compositor struct {
	layout Layout
}

func New(layout Layout) *Compositor {
	return &Compositor{layout: layout}
}

// Layout returns the active layout.
func (c *Compositor) Layout() Layout { return c.layout }

func (c *Compositor) config() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Compose keeps only the first page of template and stamps the text block
// and barcode onto it.
func (c *Compositor) Compose(ctx context.Context, template []byte, ov Overlay) ([]byte, error) {
	if len(ov.Barcode) == 0 || ov.BarcodePixels <= 0 {
		return nil, ErrNoBarcode
	}
	conf := c.config()

	n, err := api.PageCount(bytes.NewReader(template), conf)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	if n == 0 {
		return nil, ErrNoPages
	}

	doc := template
	if n > 1 {
		var out bytes.Buffer
		if err := api.Trim(bytes.NewReader(doc), &out, []string{"1"}, conf); err != nil {
			return nil, fmt.Errorf("trim template: %w", err)
		}
		doc = out.Bytes()
	}

	if len(ov.Lines) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		wm, err := api.TextWatermark(strings.Join(ov.Lines, "\n"), c.textDesc(), true, false, types.MILLIMETRES)
		if err != nil {
			return nil, fmt.Errorf("text stamp: %w", err)
		}
		if doc, err = c.stamp(doc, wm, conf); err != nil {
			return nil, fmt.Errorf("apply text stamp: %w", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wm, err := api.ImageWatermarkForReader(bytes.NewReader(ov.Barcode), c.imageDesc(ov.BarcodePixels), true, false, types.MILLIMETRES)
	if err != nil {
		return nil, fmt.Errorf("barcode stamp: %w", err)
	}
	if doc, err = c.stamp(doc, wm, conf); err != nil {
		return nil, fmt.Errorf("apply barcode stamp: %w", err)
	}
	return doc, nil
}

func (c *Compositor) stamp(doc []byte, wm *model.Watermark, conf *model.Configuration) ([]byte, error) {
	var out bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(doc), &out, []string{"1"}, wm, conf); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func (c *Compositor) textDesc() string {
	l := c.layout
	font := l.Font
	if font == "" {
		font = "Helvetica"
	}
	size := l.FontSize
	if size <= 0 {
		size = 14
	}
	return fmt.Sprintf("fontname:%s, points:%d, position:tl, offset:%s %s, scalefactor:1 abs, rotation:0, fillcolor:#000000, aligntext:l",
		font, size, mm(l.TextXMM), mm(-l.TextTopMM))
}

// imageDesc scales a px wide PNG to BarcodeSizeMM; pdfcpu treats one image
// pixel as one point at scale 1.
func (c *Compositor) imageDesc(px int) string {
	l := c.layout
	scale := l.BarcodeSizeMM * pointsPerMM / float64(px)
	return fmt.Sprintf("position:bl, offset:%s %s, scalefactor:%.4f abs, rotation:0",
		mm(l.BarcodeXMM), mm(l.BarcodeYMM), scale)
}

func mm(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}
