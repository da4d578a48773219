// Package export writes invoice lists as spreadsheets.
package export

import (
	"fmt"
	"io"

	"github.com/motorworks/invoicegen/internal/models"
	"github.com/xuri/excelize/v2"
)

const sheet = "Invoices"

// Headers is the first row of the invoice sheet.
var Headers = []string{"Invoice", "Date", "Client", "Type", "Labour", "Parts", "GCT", "Total", "Currency"}

// Invoices writes one row per invoice to w as an XLSX workbook. Items must be
// preloaded for GENERAL invoices; PROFORMA rows carry the quoted price as total.
func Invoices(w io.Writer, invoices []models.Invoice) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	for i, h := range Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(Headers), 1)
	if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
		return err
	}
	amount, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return err
	}

	for i := range invoices {
		inv := &invoices[i]
		row := i + 2
		client := ""
		if inv.Client != nil {
			client = inv.Client.Name
		}
		values := []any{inv.ID, inv.Date.Format("2006-01-02"), client, inv.Type.Label()}
		if inv.IsProforma() {
			total := any("")
			if inv.ProformaPrice.Valid {
				total = inv.ProformaPrice.Decimal.InexactFloat64()
			}
			values = append(values, "", "", "", total, inv.Currency())
		} else {
			t := inv.Totals()
			values = append(values,
				t.LabourSubtotal.InexactFloat64(),
				t.PartsSubtotal.InexactFloat64(),
				t.Tax.InexactFloat64(),
				t.Total.InexactFloat64(),
				"",
			)
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("export row %d: %w", row, err)
		}
		from, _ := excelize.CoordinatesToCellName(5, row)
		to, _ := excelize.CoordinatesToCellName(8, row)
		if err := f.SetCellStyle(sheet, from, to, amount); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(sheet, "C", "C", 30); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}
