package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/motorworks/invoicegen/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestInvoices(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	invoices := []models.Invoice{
		{
			ID: 1, Type: models.InvoiceTypeGeneral, Date: day,
			Client: &models.Client{Name: "Bob"},
			Items: []models.InvoiceItem{
				{LabourCost: decimal.RequireFromString("120"), PartsCost: decimal.RequireFromString("75.75")},
			},
		},
		{
			ID: 2, Type: models.InvoiceTypeProforma, Date: day,
			Client:        &models.Client{Name: "Ann"},
			ProformaPrice: decimal.NewNullDecimal(decimal.RequireFromString("1850000")),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Invoices(&buf, invoices))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Headers, rows[0])

	general := rows[1]
	assert.Equal(t, []string{"1", "2024-03-01", "Bob", "General"}, general[:4])

	v, err := f.GetCellValue(sheet, "G2", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "11.36", v)
	v, err = f.GetCellValue(sheet, "H2", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "207.11", v)

	v, err = f.GetCellValue(sheet, "H3", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "1850000", v)
	v, err = f.GetCellValue(sheet, "I3")
	require.NoError(t, err)
	assert.Equal(t, "JMD", v)
}

func TestInvoicesEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Invoices(&buf, nil))
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
