// Package templates decides which PDF page a label is stamped onto.
package templates

import (
	"bytes"
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"labelgen/internal/chrome"
	"labelgen/internal/label"
	u "labelgen/internal/utils"
)

//go:embed assets/default.html
var assets embed.FS

// ErrUnsupported is returned for uploads that are neither PDF nor HTML.
var ErrUnsupported = errors.New("template must be a PDF or HTML document")

// HTMLRenderer prints HTML to PDF.
type HTMLRenderer interface {
	RenderHTML(ctx context.Context, html string, paper chrome.Paper) ([]byte, error)
}

// Page describes the label stock used for the built-in layout.
type Page struct {
	WidthMM       float64
	HeightMM      float64
	BarcodeXMM    float64
	BarcodeYMM    float64
	BarcodeSizeMM float64
	Title         string
}

// Resolver turns a request's template into PDF bytes.
type Resolver struct {
	defaultPath string
	html        HTMLRenderer
	page        Page

	mu         sync.Mutex
	source     *defaultSource
	defaultPDF []byte
}

// defaultSource is the default template before any HTML rendering.
type defaultSource struct {
	raw  []byte
	html bool
	sum  string
}

func newDefaultSource(raw []byte, html bool) *defaultSource {
	sum := sha256.Sum256(raw)
	return &defaultSource{raw: raw, html: html, sum: hex.EncodeToString(sum[:])}
}

// NewResolver builds a resolver. defaultPath may be empty and html may be
// nil; without either the built-in layout is unavailable.
func NewResolver(defaultPath string, html HTMLRenderer, page Page) *Resolver {
	if page.Title == "" {
		page.Title = "PRODUCT LABEL"
	}
	return &Resolver{defaultPath: defaultPath, html: html, page: page}
}

// Detect classifies an upload by file extension, then by content.
func Detect(filename string, data []byte) (label.TemplateKind, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return label.TemplatePDF, nil
	case ".html", ".htm":
		return label.TemplateHTML, nil
	}
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return label.TemplatePDF, nil
	}
	if strings.HasPrefix(http.DetectContentType(data), "text/html") {
		return label.TemplateHTML, nil
	}
	return "", ErrUnsupported
}

// Resolve returns the PDF template for req: the uploaded one if present,
// otherwise the configured or built-in default.
func (r *Resolver) Resolve(ctx context.Context, req label.Request) ([]byte, error) {
	if len(req.Template) > 0 {
		if req.TemplateKind == label.TemplateHTML {
			return r.renderHTML(ctx, string(req.Template))
		}
		return req.Template, nil
	}
	return r.Default(ctx)
}

// Default returns the default template, loading or rendering it on first
// use. Failures are not memoised.
func (r *Resolver) Default(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.defaultPDF != nil {
		return r.defaultPDF, nil
	}

	src, err := r.loadSource()
	if err != nil {
		return nil, err
	}
	if !src.html {
		r.defaultPDF = src.raw
		return src.raw, nil
	}
	pdf, err := r.renderHTML(ctx, string(src.raw))
	if err != nil {
		return nil, err
	}
	u.Info("Rendered built-in label template", "bytes", len(pdf))
	r.defaultPDF = pdf
	return pdf, nil
}

// DefaultDigest identifies the default template by the sha256 of its
// source, so it is stable across restarts even though rendered PDFs are not.
func (r *Resolver) DefaultDigest() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, err := r.loadSource()
	if err != nil {
		return "", err
	}
	return src.sum, nil
}

// loadSource reads the configured file or fills in the built-in layout.
// r.mu must be held.
func (r *Resolver) loadSource() (*defaultSource, error) {
	if r.source != nil {
		return r.source, nil
	}

	if r.defaultPath != "" {
		raw, err := os.ReadFile(r.defaultPath)
		if err == nil {
			u.Info("Loaded default label template", "path", r.defaultPath, "bytes", len(raw))
			r.source = newDefaultSource(raw, false)
			return r.source, nil
		}
		u.Warn("Default label template unreadable", "path", r.defaultPath, "error", err)
	}

	if r.html == nil {
		return nil, label.ErrNoTemplate
	}
	html, err := r.builtinHTML()
	if err != nil {
		return nil, err
	}
	r.source = newDefaultSource([]byte(html), true)
	return r.source, nil
}

func (r *Resolver) renderHTML(ctx context.Context, src string) ([]byte, error) {
	if r.html == nil {
		return nil, fmt.Errorf("%w: html templates need chrome", label.ErrNoTemplate)
	}
	return r.html.RenderHTML(ctx, src, chrome.PaperMM(r.page.WidthMM, r.page.HeightMM))
}

func (r *Resolver) builtinHTML() (string, error) {
	raw, err := assets.ReadFile("assets/default.html")
	if err != nil {
		return "", err
	}
	tmpl, err := template.New("default").Parse(string(raw))
	if err != nil {
		return "", err
	}

	p := r.page
	data := struct {
		WidthMM, HeightMM                             string
		BarcodeRightMM, BarcodeBottomMM, BarcodeBoxMM string
		Title                                         string
	}{
		WidthMM:         mm(p.WidthMM),
		HeightMM:        mm(p.HeightMM),
		BarcodeRightMM:  mm(p.WidthMM - p.BarcodeXMM - p.BarcodeSizeMM - 1),
		BarcodeBottomMM: mm(p.BarcodeYMM - 1),
		BarcodeBoxMM:    mm(p.BarcodeSizeMM + 2),
		Title:           p.Title,
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func mm(v float64) string {
	if v < 0 {
		v = 0
	}
	return fmt.Sprintf("%.2f", v)
}
