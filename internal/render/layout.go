package render

import (
	"strings"

	"github.com/go-pdf/fpdf"
)

// A4 portrait geometry in millimetres.
const (
	pageWidth    = 210.0
	pageHeight   = 297.0
	marginLeft   = 15.0
	marginRight  = 15.0
	marginTop    = 15.0
	marginBottom = 15.0
	contentWidth = pageWidth - marginLeft - marginRight
	rightEdge    = pageWidth - marginRight
	bottomLimit  = pageHeight - marginBottom

	bodySize   = 10.0
	lineHeight = 5.0
	cellPad    = 1.5
)

// mark records where a block started or ended, for layout assertions.
type mark struct {
	name string
	page int
	y    float64
}

// page wraps the PDF with a vertical cursor that only moves down within a page.
type page struct {
	pdf    *fpdf.Fpdf
	family string
	tr     func(string) string
	y      float64
	marks  []mark

	// onBreak redraws repeated content (the table header) after a page break.
	onBreak func()
}

func (p *page) font(style string, size float64) {
	p.pdf.SetFont(p.family, style, size)
}

func (p *page) width(s string) float64 {
	return p.pdf.GetStringWidth(p.tr(s))
}

// text draws s with its baseline one line below the current top y.
func (p *page) text(x, top float64, s string) {
	p.pdf.Text(x, top+lineHeight-1.2, p.tr(s))
}

// textRight draws s so that it ends exactly at right.
func (p *page) textRight(right, top float64, s string) {
	p.text(right-p.width(s), top, s)
}

// textCenter draws s centred on the page.
func (p *page) textCenter(top float64, s string) {
	p.text((pageWidth-p.width(s))/2, top, s)
}

func (p *page) advance(h float64) {
	p.y += h
}

func (p *page) rule(y float64) {
	p.pdf.Line(marginLeft, y, rightEdge, y)
}

func (p *page) mark(name string) {
	p.marks = append(p.marks, mark{name: name, page: p.pdf.PageNo(), y: p.y})
}

// ensure starts a new page when h does not fit below the cursor.
func (p *page) ensure(h float64) {
	if p.y+h <= bottomLimit {
		return
	}
	p.pdf.AddPage()
	p.y = marginTop
	if p.onBreak != nil {
		p.onBreak()
	}
}

// wrapText greedily packs words into lines no wider than width, as measured by
// measure. A word that is wider than the column on its own is split by runes.
func wrapText(measure func(string) float64, text string, width float64) []string {
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			continue
		}
		current := ""
		for _, w := range words {
			if measure(w) > width {
				if current != "" {
					lines = append(lines, current)
					current = ""
				}
				pieces := breakWord(measure, w, width)
				lines = append(lines, pieces[:len(pieces)-1]...)
				current = pieces[len(pieces)-1]
				continue
			}
			candidate := w
			if current != "" {
				candidate = current + " " + w
			}
			if measure(candidate) <= width {
				current = candidate
				continue
			}
			lines = append(lines, current)
			current = w
		}
		if current != "" {
			lines = append(lines, current)
		}
	}
	return lines
}

func breakWord(measure func(string) float64, word string, width float64) []string {
	var pieces []string
	var b strings.Builder
	for _, r := range word {
		next := b.String() + string(r)
		if b.Len() > 0 && measure(next) > width {
			pieces = append(pieces, b.String())
			b.Reset()
		}
		b.WriteRune(r)
	}
	if b.Len() > 0 {
		pieces = append(pieces, b.String())
	}
	return pieces
}
