package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"labelgen/internal/chrome"
	"labelgen/internal/compose"
	"labelgen/internal/gs1"
	"labelgen/internal/label"
	"labelgen/internal/labelcache"
	"labelgen/internal/templates"
	u "labelgen/internal/utils"
)

// BarcodeRenderer turns an element string into a PNG symbol.
type BarcodeRenderer interface {
	Render(ctx context.Context, payload []byte) ([]byte, error)
}

// Compositor stamps an overlay onto a PDF template.
type Compositor interface {
	Compose(ctx context.Context, template []byte, ov compose.Overlay) ([]byte, error)
}

// TemplateResolver picks the PDF page for a request.
type TemplateResolver interface {
	Resolve(ctx context.Context, req label.Request) ([]byte, error)
	// DefaultDigest identifies the template used when none is uploaded.
	DefaultDigest() (string, error)
}

// LabelService bundles configuration and collaborators for label generation.
type LabelService struct {
	Config    *u.Config
	Cache     *labelcache.Cache
	Barcode   BarcodeRenderer
	Composer  Compositor
	Templates TemplateResolver
	// Pool is only used for stats and may be nil.
	Pool *chrome.Pool
}

var filenamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// NewLabelService creates a LabelService. A nil cache disables caching.
func NewLabelService(cfg u.Config, cache *labelcache.Cache, bc BarcodeRenderer, comp Compositor, tmpl TemplateResolver, pool *chrome.Pool) *LabelService {
	if cache == nil {
		cache = labelcache.New(nil)
	}
	return &LabelService{
		Config:    &cfg,
		Cache:     cache,
		Barcode:   bc,
		Composer:  comp,
		Templates: tmpl,
		Pool:      pool,
	}
}

// Compute runs the full pipeline for one request: encode, render the
// symbol, resolve the template and compose the page.
func (svc *LabelService) Compute(ctx context.Context, req label.Request) ([]byte, error) {
	payload, err := label.Encode(req)
	if err != nil {
		return nil, err
	}

	symbol, err := svc.Barcode.Render(ctx, payload)
	if err != nil {
		return nil, &label.RenderingError{Err: err}
	}

	tmpl, err := svc.Templates.Resolve(ctx, req)
	if err != nil {
		if errors.Is(err, label.ErrNoTemplate) {
			return nil, err
		}
		return nil, &label.CompositionError{Err: fmt.Errorf("template: %w", err)}
	}

	pdf, err := svc.Composer.Compose(ctx, tmpl, compose.Overlay{
		Lines:         req.DisplayLines(),
		Barcode:       symbol,
		BarcodePixels: svc.barcodePixels(),
	})
	if err != nil {
		return nil, &label.CompositionError{Err: err}
	}
	return pdf, nil
}

// HandleLabel renders a label PDF or serves a cached copy.
func (svc *LabelService) HandleLabel(c *fiber.Ctx) error {
	req, filename, err := svc.parseLabelRequest(c)
	if err != nil {
		return err
	}

	if len(req.Template) == 0 {
		req.DefaultTemplate = svc.defaultDigest()
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), svc.timeout())
	defer cancel()

	res, err := svc.Cache.Resolve(ctx, req, svc.Compute)
	if err != nil {
		return err
	}

	if limit := svc.Config.Limits.MaxPDFBytes; limit > 0 && len(res.Body) > limit {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "PDF exceeds allowed size")
	}

	cacheStatus := "MISS"
	if res.Hit {
		cacheStatus = "HIT"
	}
	u.Info("Label generated",
		"filename", filename,
		"cache", cacheStatus,
		"shared", res.Shared,
		"fingerprint", res.Fingerprint,
		"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
	)

	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, "attachment; filename="+filename)
	c.Set("X-Cache", cacheStatus)
	c.Set("X-Label-Fingerprint", res.Fingerprint)
	return c.Send(res.Body)
}

// HandleEncode returns the GS1 element string without rendering anything.
func (svc *LabelService) HandleEncode(c *fiber.Ctx) error {
	var in label.Input
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	req, err := in.Request()
	if err != nil {
		return err
	}
	els, err := label.Elements(req)
	if err != nil {
		return err
	}

	req.DefaultTemplate = svc.defaultDigest()
	payload := gs1.Concatenate(els)
	return c.JSON(fiber.Map{
		"element_string": string(payload),
		"printable":      gs1.Printable(payload),
		"hri":            gs1.HRI(els),
		"fingerprint":    svc.Cache.Fingerprint(req),
	})
}

// defaultDigest is empty when no default template is available. A missing
// default fails again in Compute, and failures are not cached.
func (svc *LabelService) defaultDigest() string {
	if svc.Templates == nil {
		return ""
	}
	sum, err := svc.Templates.DefaultDigest()
	if err != nil {
		u.Debug("Default template unavailable for fingerprint", "error", err)
		return ""
	}
	return sum
}

func (svc *LabelService) barcodePixels() int {
	if sized, ok := svc.Barcode.(interface{ Pixels() int }); ok {
		return sized.Pixels()
	}
	return svc.Config.Layout.BarcodePixels
}

func (svc *LabelService) timeout() time.Duration {
	secs := svc.Config.PDF.TimeoutSecs
	if secs <= 0 {
		secs = 30
	}
	return time.Duration(secs) * time.Second
}

// parseLabelRequest binds form, multipart or JSON input and the optional
// template upload.
func (svc *LabelService) parseLabelRequest(c *fiber.Ctx) (label.Request, string, error) {
	var in label.Input
	if err := c.BodyParser(&in); err != nil {
		return label.Request{}, "", fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	filename, err := labelFilename(in)
	if err != nil {
		return label.Request{}, "", err
	}

	req, err := in.Request()
	if err != nil {
		return label.Request{}, "", err
	}

	if fh, ferr := c.FormFile("template"); ferr == nil {
		limit := svc.Config.Limits.MaxTemplateBytes
		if limit > 0 && fh.Size > int64(limit) {
			return label.Request{}, "", fiber.NewError(fiber.StatusRequestEntityTooLarge, fmt.Sprintf("Template exceeds %d bytes", limit))
		}
		f, err := fh.Open()
		if err != nil {
			return label.Request{}, "", fiber.NewError(fiber.StatusBadRequest, "Cannot read template upload")
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return label.Request{}, "", fiber.NewError(fiber.StatusBadRequest, "Cannot read template upload")
		}
		kind, err := templates.Detect(fh.Filename, data)
		if err != nil {
			return label.Request{}, "", fiber.NewError(fiber.StatusUnsupportedMediaType, "Template must be a PDF or HTML file")
		}
		req.Template, req.TemplateKind = data, kind
	}
	return req, filename, nil
}

// labelFilename validates an explicit filename or derives one from the
// customer PO and part number.
func labelFilename(in label.Input) (string, error) {
	name := strings.TrimSpace(in.Filename)
	if name != "" {
		if !strings.HasSuffix(name, ".pdf") {
			return "", fiber.NewError(fiber.StatusBadRequest, "Filename must end with .pdf")
		}
		if !filenamePattern.MatchString(name) {
			return "", fiber.NewError(fiber.StatusBadRequest, "Filename contains invalid characters")
		}
		return name, nil
	}

	po, part := strings.TrimSpace(in.CustomerPO), strings.TrimSpace(in.CustomerPart)
	if po != "" && part != "" {
		derived := po + "_" + part + ".pdf"
		if filenamePattern.MatchString(derived) {
			return derived, nil
		}
	}
	return "label.pdf", nil
}

// HandleChromeStats exposes basic observability for the Chrome pool.
func (svc *LabelService) HandleChromeStats(c *fiber.Ctx) error {
	if svc.Pool == nil {
		return c.JSON(fiber.Map{
			"enabled":        false,
			"capacity":       0,
			"idle":           0,
			"in_use":         0,
			"pool_size_conf": svc.Config.PDF.ChromePoolSize,
			"profile_dir":    "",
			"timeout_secs":   svc.Config.PDF.TimeoutSecs,
			"restarts":       0,
		})
	}
	return c.JSON(svc.Pool.Stats(svc.Config.PDF.TimeoutSecs))
}
