// Package render draws invoices as A4 PDF documents.
//
// One renderer serves both invoice types. GENERAL invoices get an items table
// and a totals block, PROFORMA invoices get a vehicle attribute table and a
// single price. Word wrap, right alignment and table flow are shared.
package render

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/motorworks/invoicegen/internal/apperr"
	"github.com/motorworks/invoicegen/internal/money"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Type selects the layout variant.
type Type string

const (
	General  Type = "GENERAL"
	Proforma Type = "PROFORMA"
)

// DateLayout is used for every date printed on a document.
const DateLayout = "January 02, 2006"

const bodyFamily = "body"

// Party is the billed client.
type Party struct {
	Name    string
	Address []string
	Phone   string
	Email   string
}

// Row is one items-table line.
type Row struct {
	Description string
	Labour      decimal.Decimal
	Parts       decimal.Decimal
}

// Vehicle holds the PROFORMA sale attributes.
type Vehicle struct {
	Make     string
	Model    string
	Year     string
	Colour   string
	CCRating string
	Price    decimal.NullDecimal
	Currency string
}

// Document is everything printed on one invoice.
type Document struct {
	Type      Type
	Number    string
	Date      time.Time
	Client    Party
	Vehicle   string
	LicNo     string
	ChassisNo string
	Rows      []Row
	Totals    money.Totals
	Sale      Vehicle
}

// Letterhead is the business block at the top of every document.
type Letterhead struct {
	Name  string
	Lines []string
}

// Options configures a Renderer. Missing logo or font files are tolerated.
type Options struct {
	Letterhead   Letterhead
	LogoPath     string
	FontPath     string
	BoldFontPath string
	Timeout      time.Duration
}

// Renderer produces PDF bytes.
type Renderer struct {
	opts   Options
	logger *zap.Logger
}

// New creates a renderer. A nil logger discards warnings.
func New(opts Options, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{opts: opts, logger: logger.Named("render")}
}

// Render draws doc and returns the PDF bytes. It gives up when ctx is done or
// the configured timeout elapses.
func (r *Renderer) Render(ctx context.Context, doc Document) ([]byte, error) {
	const op = "render.Render"
	if err := ctx.Err(); err != nil {
		return nil, apperr.Render(op, err)
	}
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	start := time.Now()
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- result{err: fmt.Errorf("pdf backend panic: %v", rec)}
			}
		}()
		out, err := r.draw(doc)
		done <- result{out: out, err: err}
	}()

	select {
	case <-ctx.Done():
		r.logger.Warn("render abandoned", zap.String("number", doc.Number), zap.Error(ctx.Err()))
		return nil, apperr.Render(op, ctx.Err())
	case res := <-done:
		if res.err != nil {
			return nil, apperr.Render(op, res.err)
		}
		r.logger.Debug("rendered",
			zap.String("number", doc.Number),
			zap.String("type", string(doc.Type)),
			zap.Int("bytes", len(res.out)),
			zap.Duration("duration", time.Since(start)),
		)
		return res.out, nil
	}
}

func (r *Renderer) draw(doc Document) ([]byte, error) {
	p, err := r.build(doc)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := p.pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// build lays the document out without serializing it.
func (r *Renderer) build(doc Document) (*page, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(marginLeft, marginTop, marginRight)
	pdf.SetAutoPageBreak(false, marginBottom)
	pdf.SetTitle(title(doc.Type), true)
	pdf.SetCreator(r.opts.Letterhead.Name, true)

	p := &page{pdf: pdf, y: marginTop}
	r.setupFont(p)
	pdf.AddPage()

	r.letterhead(p)
	p.font("B", 18)
	p.textCenter(p.y, title(doc.Type))
	p.advance(lineHeight + 6)
	r.metadata(p, doc)

	switch doc.Type {
	case Proforma:
		r.saleTable(p, doc)
	default:
		r.itemsTable(p, doc)
		r.totals(p, doc.Totals)
	}
	r.signature(p)

	if pdf.Err() {
		return nil, pdf.Error()
	}
	return p, nil
}

// setupFont registers the preferred TrueType font or falls back to Helvetica.
func (r *Renderer) setupFont(p *page) {
	p.family = "Helvetica"
	p.tr = p.pdf.UnicodeTranslatorFromDescriptor("")

	path := r.opts.FontPath
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		r.logger.Warn("font not found, using Helvetica", zap.String("path", path))
		return
	}
	bold := r.opts.BoldFontPath
	if bold == "" {
		bold = path
	} else if _, err := os.Stat(bold); err != nil {
		r.logger.Warn("bold font not found, reusing regular face", zap.String("path", bold))
		bold = path
	}
	if err := addFonts(p.pdf, path, bold); err != nil {
		r.logger.Warn("font could not be loaded, using Helvetica", zap.String("path", path), zap.Error(err))
		p.pdf.ClearError()
		return
	}
	p.family = bodyFamily
	p.tr = func(s string) string { return s }
}

// addFonts registers the regular and bold faces. A corrupt file can make the
// TrueType parser panic, which is reported as an error.
func addFonts(pdf *fpdf.Fpdf, regular, bold string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("parse font: %v", rec)
		}
	}()
	pdf.AddUTF8Font(bodyFamily, "", regular)
	pdf.AddUTF8Font(bodyFamily, "B", bold)
	if pdf.Err() {
		return pdf.Error()
	}
	return nil
}

func title(t Type) string {
	if t == Proforma {
		return "PROFORMA INVOICE"
	}
	return "INVOICE"
}
