package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/motorworks/invoicegen/internal/apperr"
	"github.com/motorworks/invoicegen/internal/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleDoc(rows int) Document {
	doc := Document{
		Type:      General,
		Number:    "42",
		Date:      time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		Client:    Party{Name: "Bob Brown", Address: []string{"12 Hope Road", "Kingston 6"}, Phone: "+18761234567"},
		Vehicle:   "Toyota Corolla",
		LicNo:     "1234 AB",
		ChassisNo: "NZE141-0001",
	}
	for i := 0; i < rows; i++ {
		doc.Rows = append(doc.Rows, Row{
			Description: fmt.Sprintf("Replace front brake pads and resurface rotors, item %d, including inspection of calipers and brake lines", i),
			Labour:      dec("50.00"),
			Parts:       dec("100.00"),
		})
	}
	lines := make([]money.Line, 0, len(doc.Rows))
	for _, r := range doc.Rows {
		lines = append(lines, money.Line{Labour: r.Labour, Parts: r.Parts})
	}
	doc.Totals = money.Compute(lines)
	return doc
}

func testRenderer(opts Options) *Renderer {
	if opts.Letterhead.Name == "" {
		opts.Letterhead = Letterhead{Name: "Motorworks Auto Service", Lines: []string{"12 Hope Road", "Tel: 876-555-0100"}}
	}
	return New(opts, nil)
}

func TestWrapText_FakeMeasure(t *testing.T) {
	measure := func(s string) float64 { return float64(len(s)) }
	tests := []struct {
		name  string
		text  string
		width float64
		want  []string
	}{
		{"fits", "oil change", 20, []string{"oil change"}},
		{"greedy", "replace the front brake pads", 12, []string{"replace the", "front brake", "pads"}},
		{"long word is broken", "abcdefghij xy", 4, []string{"abcd", "efgh", "ij", "xy"}},
		{"blank", "   ", 10, nil},
		{"newlines kept", "a b\nc", 10, []string{"a b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, wrapText(measure, tt.text, tt.width))
		})
	}
}

func TestWrapText_FontMeasureStaysWithinBudget(t *testing.T) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Helvetica", "", bodySize)
	budget := contentWidth*itemColumns[0] - 2*cellPad
	desc := strings.Repeat("Diagnose intermittent misfire under load and replace ignition coil pack ", 4)

	lines := wrapText(pdf.GetStringWidth, desc, budget)

	require.GreaterOrEqual(t, len(lines), 2)
	for _, l := range lines {
		assert.LessOrEqual(t, pdf.GetStringWidth(l), budget, "line %q", l)
	}
	assert.Equal(t, strings.Join(strings.Fields(desc), " "), strings.Join(lines, " "))
}

func TestRender_GeneralProducesPDF(t *testing.T) {
	r := testRenderer(Options{})
	out, err := r.Render(context.Background(), sampleDoc(3))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestRender_ProformaProducesPDF(t *testing.T) {
	doc := sampleDoc(0)
	doc.Type = Proforma
	doc.Sale = Vehicle{Make: "Toyota", Model: "Axio", Year: "2019", Colour: "Pearl White", CCRating: "1500", Price: decimal.NewNullDecimal(dec("2350000")), Currency: "JMD"}

	out, err := testRenderer(Options{}).Render(context.Background(), doc)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestRender_MissingAssetsDegrade(t *testing.T) {
	dir := t.TempDir()
	r := testRenderer(Options{
		LogoPath: filepath.Join(dir, "missing-logo.jpeg"),
		FontPath: filepath.Join(dir, "missing-font.ttf"),
	})
	out, err := r.Render(context.Background(), sampleDoc(1))
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestRender_UndecodableFontFallsBack(t *testing.T) {
	dir := t.TempDir()
	font := filepath.Join(dir, "broken.ttf")
	require.NoError(t, os.WriteFile(font, []byte("not a font"), 0o644))

	out, err := testRenderer(Options{FontPath: font}).Render(context.Background(), sampleDoc(1))
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestRender_WithLogo(t *testing.T) {
	dir := t.TempDir()
	logo := filepath.Join(dir, "logo.png")
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		for y := 0; y < 20; y++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	f, err := os.Create(logo)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	r := testRenderer(Options{LogoPath: logo})
	p, err := r.build(sampleDoc(1))
	require.NoError(t, err)
	assert.False(t, p.pdf.Err())
}

func TestRender_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := testRenderer(Options{}).Render(ctx, sampleDoc(1))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Rendering))
}

func TestBuild_TableFlowsAcrossPages(t *testing.T) {
	r := testRenderer(Options{})
	small, err := r.build(sampleDoc(2))
	require.NoError(t, err)
	assert.Equal(t, 1, small.pdf.PageCount())

	large, err := r.build(sampleDoc(60))
	require.NoError(t, err)
	assert.Greater(t, large.pdf.PageCount(), 1)

	for _, p := range []*page{small, large} {
		end := findMark(t, p, "table_end")
		totals := findMark(t, p, "totals_start")
		sig := findMark(t, p, "signature_start")
		assert.True(t, after(totals, end), "totals must start below the table")
		assert.True(t, after(sig, totals), "signature must start below the totals")
	}
}

func TestBuild_MoreRowsPushTotalsDown(t *testing.T) {
	r := testRenderer(Options{})
	few, err := r.build(sampleDoc(1))
	require.NoError(t, err)
	more, err := r.build(sampleDoc(4))
	require.NoError(t, err)

	assert.Greater(t, findMark(t, more, "totals_start").y, findMark(t, few, "totals_start").y)
}

func TestTotals_StayAboveBottomMargin(t *testing.T) {
	r := testRenderer(Options{})
	block := totalsGap + 4*totalsRow + totalsTail
	for _, room := range []float64{block - 2, block - 0.5, block, block + 3} {
		pdf := fpdf.New("P", "mm", "A4", "")
		pdf.SetAutoPageBreak(false, marginBottom)
		p := &page{pdf: pdf, y: bottomLimit - room}
		r.setupFont(p)
		pdf.AddPage()

		r.totals(p, money.Compute([]money.Line{{Labour: decimal.NewFromInt(50), Parts: decimal.NewFromInt(100)}}))

		start := findMark(t, p, "totals_start")
		end := findMark(t, p, "totals_end")
		assert.Equal(t, start.page, end.page, "room %.1f", room)
		assert.LessOrEqual(t, end.y, bottomLimit, "room %.1f", room)
		assert.Equal(t, room < block, end.page == 2, "room %.1f", room)
	}
}

func findMark(t *testing.T, p *page, name string) mark {
	t.Helper()
	for _, m := range p.marks {
		if m.name == name {
			return m
		}
	}
	t.Fatalf("mark %q not recorded", name)
	return mark{}
}

func after(a, b mark) bool {
	if a.page != b.page {
		return a.page > b.page
	}
	return a.y >= b.y
}
