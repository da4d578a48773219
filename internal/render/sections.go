package render

import (
	"os"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/motorworks/invoicegen/internal/money"
	"go.uber.org/zap"
)

const (
	logoWidth  = 32.0
	logoGap    = 6.0
	labelWidth = 24.0
)

// Column fractions of the content width.
var (
	itemColumns = [3]float64{0.60, 0.20, 0.20}
	saleColumns = [2]float64{0.40, 0.60}
)

func (r *Renderer) letterhead(p *page) {
	top := p.y
	textX := marginLeft
	logoBottom := top

	if path := r.opts.LogoPath; path != "" {
		if _, err := os.Stat(path); err != nil {
			r.logger.Warn("logo not found, omitting", zap.String("path", path))
		} else {
			opts := fpdf.ImageOptions{ReadDpi: true}
			info := p.pdf.RegisterImageOptions(path, opts)
			if p.pdf.Err() || info == nil || info.Width() == 0 {
				r.logger.Warn("logo could not be decoded, omitting", zap.String("path", path), zap.Error(p.pdf.Error()))
				p.pdf.ClearError()
			} else {
				h := logoWidth * info.Height() / info.Width()
				p.pdf.ImageOptions(path, marginLeft, top, logoWidth, h, false, opts, 0, "")
				logoBottom = top + h
				textX = marginLeft + logoWidth + logoGap
			}
		}
	}

	y := top
	p.font("B", 16)
	p.text(textX, y, r.opts.Letterhead.Name)
	y += lineHeight + 2
	p.font("", 9)
	for _, line := range r.opts.Letterhead.Lines {
		p.text(textX, y, line)
		y += lineHeight - 0.8
	}

	p.y = max(y, logoBottom) + 3
	p.rule(p.y)
	p.advance(6)
}

func (r *Renderer) metadata(p *page, doc Document) {
	top := p.y

	// Right column: number and date, flush with the right edge.
	p.font("", bodySize)
	ry := top
	if doc.Number != "" {
		p.textRight(rightEdge, ry, "Invoice #: "+doc.Number)
		ry += lineHeight
	}
	if !doc.Date.IsZero() {
		p.textRight(rightEdge, ry, "Date: "+doc.Date.Format(DateLayout))
		ry += lineHeight
	}

	// Left column: client block then vehicle identifiers.
	ly := top
	p.font("B", bodySize)
	p.text(marginLeft, ly, "Bill To:")
	ly += lineHeight
	p.font("", bodySize)
	for _, line := range clientLines(doc.Client) {
		p.text(marginLeft, ly, line)
		ly += lineHeight
	}
	ly += 2
	for _, kv := range [][2]string{
		{"Vehicle:", doc.Vehicle},
		{"Lic#:", doc.LicNo},
		{"Chassis#:", doc.ChassisNo},
	} {
		if strings.TrimSpace(kv[1]) == "" {
			continue
		}
		p.font("B", bodySize)
		p.text(marginLeft, ly, kv[0])
		p.font("", bodySize)
		p.text(marginLeft+labelWidth, ly, kv[1])
		ly += lineHeight
	}

	p.y = max(ly, ry) + 4
}

func clientLines(c Party) []string {
	lines := []string{c.Name}
	lines = append(lines, c.Address...)
	if c.Phone != "" {
		lines = append(lines, c.Phone)
	}
	if c.Email != "" {
		lines = append(lines, c.Email)
	}
	return lines
}

// header draws a filled table header row. Cells listed in right are right aligned.
func (r *Renderer) header(p *page, labels []string, widths []float64, right map[int]bool) {
	h := lineHeight + 2*cellPad
	p.pdf.SetFillColor(230, 233, 238)
	p.pdf.Rect(marginLeft, p.y, contentWidth, h, "F")
	p.font("B", bodySize)
	x := marginLeft
	for i, label := range labels {
		if right[i] {
			p.textRight(x+widths[i]-cellPad, p.y+cellPad, label)
		} else {
			p.text(x+cellPad, p.y+cellPad, label)
		}
		x += widths[i]
	}
	p.advance(h)
	p.font("", bodySize)
}

func (r *Renderer) itemsTable(p *page, doc Document) {
	widths := []float64{
		contentWidth * itemColumns[0],
		contentWidth * itemColumns[1],
		contentWidth * itemColumns[2],
	}
	labels := []string{"Description", "Labour", "Parts"}
	right := map[int]bool{1: true, 2: true}
	drawHeader := func() { r.header(p, labels, widths, right) }

	p.ensure(2 * (lineHeight + 2*cellPad))
	drawHeader()
	p.onBreak = drawHeader
	defer func() { p.onBreak = nil }()

	if len(doc.Rows) == 0 {
		p.text(marginLeft+cellPad, p.y+cellPad, "No items")
		p.advance(lineHeight + 2*cellPad)
	}

	descBudget := widths[0] - 2*cellPad
	for _, row := range doc.Rows {
		lines := wrapText(p.width, row.Description, descBudget)
		if len(lines) == 0 {
			lines = []string{""}
		}
		h := float64(len(lines))*lineHeight + 2*cellPad
		p.ensure(h)

		top := p.y + cellPad
		for i, line := range lines {
			p.text(marginLeft+cellPad, top+float64(i)*lineHeight, line)
		}
		p.textRight(marginLeft+widths[0]+widths[1]-cellPad, top, money.Format(row.Labour, ""))
		p.textRight(rightEdge-cellPad, top, money.Format(row.Parts, ""))
		p.advance(h)
		p.pdf.SetDrawColor(210, 210, 210)
		p.rule(p.y)
	}
	p.pdf.SetDrawColor(0, 0, 0)
	p.mark("table_end")
}

// Vertical space taken by the totals block.
const (
	totalsGap  = 4.0
	totalsRow  = lineHeight + 1
	totalsTail = 2.0
)

func (r *Renderer) totals(p *page, t money.Totals) {
	rows := [][2]string{
		{"Labour", money.Format(t.LabourSubtotal, "")},
		{"Parts", money.Format(t.PartsSubtotal, "")},
		{"GCT (15%)", money.Format(t.Tax, "")},
		{"Total", money.Format(t.Total, "")},
	}
	p.ensure(totalsGap + float64(len(rows))*totalsRow + totalsTail)
	p.advance(totalsGap)
	p.mark("totals_start")

	valueRight := rightEdge - cellPad
	labelRight := valueRight - contentWidth*itemColumns[2]
	for i, row := range rows {
		style := ""
		if i == len(rows)-1 {
			style = "B"
			p.pdf.Line(labelRight-30, p.y, rightEdge, p.y)
		}
		p.font(style, bodySize)
		p.textRight(labelRight, p.y, row[0])
		p.textRight(valueRight, p.y, row[1])
		p.advance(totalsRow)
	}
	p.font("", bodySize)
	p.mark("totals_end")
	p.advance(totalsTail)
}

func (r *Renderer) saleTable(p *page, doc Document) {
	widths := []float64{contentWidth * saleColumns[0], contentWidth * saleColumns[1]}
	drawHeader := func() { r.header(p, []string{"Vehicle", "Details"}, widths, nil) }

	p.ensure(2 * (lineHeight + 2*cellPad))
	drawHeader()
	p.onBreak = drawHeader
	defer func() { p.onBreak = nil }()

	s := doc.Sale
	budget := widths[1] - 2*cellPad
	for _, kv := range [][2]string{
		{"Make", s.Make},
		{"Model", s.Model},
		{"Year", s.Year},
		{"Colour", s.Colour},
		{"CC Rating", s.CCRating},
		{"Chassis#", doc.ChassisNo},
	} {
		lines := wrapText(p.width, kv[1], budget)
		if len(lines) == 0 {
			lines = []string{"-"}
		}
		h := float64(len(lines))*lineHeight + 2*cellPad
		p.ensure(h)
		top := p.y + cellPad
		p.font("B", bodySize)
		p.text(marginLeft+cellPad, top, kv[0])
		p.font("", bodySize)
		for i, line := range lines {
			p.text(marginLeft+widths[0]+cellPad, top+float64(i)*lineHeight, line)
		}
		p.advance(h)
		p.pdf.SetDrawColor(210, 210, 210)
		p.rule(p.y)
	}
	p.pdf.SetDrawColor(0, 0, 0)
	p.mark("table_end")

	p.ensure(lineHeight + 10)
	p.advance(4)
	p.mark("totals_start")
	p.font("B", 12)
	price := money.FormatOptional(s.Price, s.Currency)
	p.textRight(rightEdge-cellPad, p.y, price)
	p.textRight(rightEdge-cellPad-p.width(price)-6, p.y, "Total Cost")
	p.font("", bodySize)
	p.advance(lineHeight + 4)
}

func (r *Renderer) signature(p *page) {
	const block = 28.0
	p.ensure(block)
	p.advance(16)
	p.mark("signature_start")
	p.pdf.Line(marginLeft, p.y, marginLeft+70, p.y)
	p.pdf.Line(rightEdge-50, p.y, rightEdge, p.y)
	p.font("", 9)
	p.text(marginLeft, p.y+1, "Authorized Signature")
	p.textRight(rightEdge, p.y+1, "Date")
	p.advance(lineHeight + 2)
}
