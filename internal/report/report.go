// Package report summarizes loaded harvest facts per day and crop.
package report

import (
	"context"
	"fmt"
	"sort"

	"github.com/leapstack-labs/agriflow/pkg/adapter"
	"github.com/leapstack-labs/agriflow/pkg/core"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Line aggregates the facts of one date and crop. Revenue and Profit only
// count priced lots; Unpriced counts the rest.
type Line struct {
	DateID        int64           `json:"date_id"`
	CropCode      string          `json:"crop_code"`
	CropName      string          `json:"crop_name"`
	Lots          int             `json:"lots"`
	Unpriced      int             `json:"unpriced"`
	QuantityKg    decimal.Decimal `json:"quantity_kg"`
	SpoilageKg    decimal.Decimal `json:"spoilage_kg"`
	LaborCost     decimal.Decimal `json:"labor_cost_zar"`
	LogisticsCost decimal.Decimal `json:"logistics_cost_zar"`
	Revenue       decimal.Decimal `json:"revenue_zar"`
	Profit        decimal.Decimal `json:"profit_zar"`
}

func (l *Line) add(f core.FactView) {
	l.Lots++
	l.QuantityKg = l.QuantityKg.Add(f.QuantityHarvestedKg)
	l.SpoilageKg = l.SpoilageKg.Add(f.SpoilageKg)
	l.LaborCost = l.LaborCost.Add(f.LaborCostZAR)
	l.LogisticsCost = l.LogisticsCost.Add(f.LogisticsCostZAR)
	if !f.RevenueZAR.Valid {
		l.Unpriced++
		return
	}
	l.Revenue = l.Revenue.Add(f.RevenueZAR.Decimal)
	if f.ProfitZAR.Valid {
		l.Profit = l.Profit.Add(f.ProfitZAR.Decimal)
	}
}

// Summary is the report over a date range.
type Summary struct {
	From  int64  `json:"from"`
	To    int64  `json:"to"`
	Lines []Line `json:"lines"`
	Total Line   `json:"total"`
}

// Build reads facts with from <= date_id <= to and summarizes them.
func Build(ctx context.Context, reader adapter.FactReader, from, to int64) (Summary, error) {
	if from > to {
		return Summary{}, fmt.Errorf("invalid range: %d is after %d", from, to)
	}
	facts, err := reader.ReadFacts(ctx, from, to)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to read facts: %w", err)
	}
	s := Summarize(facts)
	s.From, s.To = from, to
	return s, nil
}

// Summarize groups facts by date and crop, ordered by date then crop code.
// Facts with an unresolved crop are grouped under an empty code.
func Summarize(facts []core.FactView) Summary {
	type key struct {
		date int64
		crop string
	}
	groups := make(map[key]*Line)
	var s Summary
	for _, f := range facts {
		k := key{f.DateID, f.CropCode}
		l, ok := groups[k]
		if !ok {
			l = &Line{DateID: f.DateID, CropCode: f.CropCode, CropName: f.CropName}
			groups[k] = l
		}
		l.add(f)
		s.Total.add(f)
	}

	s.Lines = make([]Line, 0, len(groups))
	for _, l := range groups {
		s.Lines = append(s.Lines, *l)
	}
	sort.Slice(s.Lines, func(i, j int) bool {
		if s.Lines[i].DateID != s.Lines[j].DateID {
			return s.Lines[i].DateID < s.Lines[j].DateID
		}
		return s.Lines[i].CropCode < s.Lines[j].CropCode
	})
	return s
}

var printer = message.NewPrinter(language.English)

// Money formats an amount in rand with thousands separators, e.g. R 1,234.56.
func Money(d decimal.Decimal) string {
	return printer.Sprintf("R %.2f", d.Round(2).InexactFloat64())
}

// Kg formats a mass with thousands separators.
func Kg(d decimal.Decimal) string {
	return printer.Sprintf("%.2f kg", d.Round(2).InexactFloat64())
}

// FormatDateID renders 20260217 as 2026-02-17.
func FormatDateID(id int64) string {
	t, err := adapter.DateFromID(id)
	if err != nil {
		return fmt.Sprint(id)
	}
	return t.Format("2006-01-02")
}
