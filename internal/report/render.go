package report

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/xuri/excelize/v2"
)

var header = table.Row{"Date", "Crop", "Lots", "Harvested", "Spoilage", "Labor", "Logistics", "Revenue", "Profit"}

func cropLabel(l Line) string {
	switch {
	case l.CropCode == "":
		return "(unresolved)"
	case l.CropName == "":
		return l.CropCode
	default:
		return fmt.Sprintf("%s (%s)", l.CropName, l.CropCode)
	}
}

// WriteTable renders the summary as a terminal table followed by the total
// revenue line.
func WriteTable(w io.Writer, s Summary) {
	if len(s.Lines) == 0 {
		_, _ = fmt.Fprintln(w, "(no facts)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	for _, l := range s.Lines {
		t.AppendRow(row(FormatDateID(l.DateID), cropLabel(l), l))
	}
	t.AppendFooter(row("Total", "", s.Total))
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
		{Number: 9, Align: text.AlignRight},
	})
	t.Render()

	_, _ = fmt.Fprintf(w, "Total revenue: %s\n", Money(s.Total.Revenue))
	if s.Total.Unpriced > 0 {
		_, _ = fmt.Fprintf(w, "%d lots without a market price are excluded from revenue\n", s.Total.Unpriced)
	}
}

func row(date, crop string, l Line) table.Row {
	return table.Row{
		date, crop, l.Lots,
		Kg(l.QuantityKg), Kg(l.SpoilageKg),
		Money(l.LaborCost), Money(l.LogisticsCost), Money(l.Revenue), Money(l.Profit),
	}
}

// SheetName is the worksheet written by WriteXLSX.
const SheetName = "Harvest Summary"

// WriteXLSX writes the summary as a single-sheet workbook with numeric cells.
func WriteXLSX(w io.Writer, s Summary) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}

	for i, h := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SheetName, cell, h)
	}

	write := func(r int, vals ...any) {
		for i, v := range vals {
			cell, _ := excelize.CoordinatesToCellName(i+1, r)
			_ = f.SetCellValue(SheetName, cell, v)
		}
	}
	values := func(date, crop string, l Line) []any {
		return []any{
			date, crop, l.Lots,
			l.QuantityKg.InexactFloat64(), l.SpoilageKg.InexactFloat64(),
			l.LaborCost.InexactFloat64(), l.LogisticsCost.InexactFloat64(),
			l.Revenue.InexactFloat64(), l.Profit.InexactFloat64(),
		}
	}

	r := 2
	for _, l := range s.Lines {
		write(r, values(FormatDateID(l.DateID), cropLabel(l), l)...)
		r++
	}
	write(r, values("Total", "", s.Total)...)

	money, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(header), r)
	if err := f.SetCellStyle(SheetName, "D2", last, money); err != nil {
		return err
	}
	_ = f.SetColWidth(SheetName, "A", "A", 12)
	_ = f.SetColWidth(SheetName, "B", "B", 26)
	_ = f.SetColWidth(SheetName, "D", "I", 14)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}
