package extract

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/leapstack-labs/agriflow/pkg/core"
	"github.com/shopspring/decimal"
)

// Harvest log column names.
const (
	ColHarvestID    = "harvest_id"
	ColDate         = "date"
	ColFarmID       = "farm_id"
	ColCropCode     = "crop_code"
	ColQtyHarvested = "qty_harvested_kg"
	ColSpoilage     = "spoilage_kg"
	ColLaborHours   = "labor_hours"
	ColManagerCheck = "manager_check"
)

// HarvestColumns lists the harvest log header in canonical order.
var HarvestColumns = []string{
	ColHarvestID, ColDate, ColFarmID, ColCropCode,
	ColQtyHarvested, ColSpoilage, ColLaborHours, ColManagerCheck,
}

var requiredHarvestColumns = []string{ColHarvestID, ColDate, ColFarmID, ColCropCode, ColQtyHarvested}

// ReadHarvestCSV parses a harvest log. name identifies the file in errors.
//
// spoilage_kg, labor_hours and manager_check are optional: a missing column
// or an empty cell reads as zero, or as an absent manager.
func ReadHarvestCSV(r io.Reader, name string) (core.HarvestBatch, error) {
	batch := core.HarvestBatch{Source: name}

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return batch, &core.SchemaError{File: name, Missing: requiredHarvestColumns}
	}
	if err != nil {
		return batch, wrapCSVError(name, err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		idx[strings.ToLower(h)] = i
	}
	var missing []string
	for _, col := range requiredHarvestColumns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return batch, &core.SchemaError{File: name, Missing: missing}
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return batch, wrapCSVError(name, err)
		}
		line, _ := cr.FieldPos(0)

		field := func(col string) string {
			i, ok := idx[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		measure := func(col string) (decimal.Decimal, error) {
			v := field(col)
			if v == "" {
				return decimal.Zero, nil
			}
			d, err := decimal.NewFromString(v)
			if err != nil {
				return decimal.Zero, &core.RecordError{File: name, Line: line, Column: col, Err: err}
			}
			return d, nil
		}

		h := core.HarvestRecord{
			HarvestID: field(ColHarvestID),
			Date:      field(ColDate),
			FarmID:    field(ColFarmID),
			CropCode:  field(ColCropCode),
		}
		if h.Date == "" {
			return batch, &core.RecordError{File: name, Line: line, Column: ColDate, Err: errors.New("empty date")}
		}
		if h.QtyHarvestedKg, err = measure(ColQtyHarvested); err != nil {
			return batch, err
		}
		if h.SpoilageKg, err = measure(ColSpoilage); err != nil {
			return batch, err
		}
		if h.LaborHours, err = measure(ColLaborHours); err != nil {
			return batch, err
		}
		if m := field(ColManagerCheck); m != "" {
			h.ManagerCheck = &m
		}

		batch.Records = append(batch.Records, h)
	}

	return batch, nil
}

// WriteHarvestCSV writes records as a harvest log with the canonical header.
func WriteHarvestCSV(w io.Writer, records []core.HarvestRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(HarvestColumns); err != nil {
		return err
	}
	for _, h := range records {
		if err := cw.Write([]string{
			h.HarvestID,
			h.Date,
			h.FarmID,
			h.CropCode,
			h.QtyHarvestedKg.String(),
			h.SpoilageKg.String(),
			h.LaborHours.String(),
			h.Manager(),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func wrapCSVError(name string, err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &core.RecordError{File: name, Line: pe.Line, Column: fmt.Sprintf("field %d", pe.Column), Err: pe.Err}
	}
	return fmt.Errorf("failed to read %s: %w", name, err)
}
