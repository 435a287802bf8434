package extract

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/leapstack-labs/agriflow/pkg/core"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"
)

//go:embed price_schema.json
var priceSchemaJSON []byte

var (
	priceSchemaOnce sync.Once
	priceSchema     *jsonschema.Schema
	priceSchemaErr  error
)

func compiledPriceSchema() (*jsonschema.Schema, error) {
	priceSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("price_schema.json", bytes.NewReader(priceSchemaJSON)); err != nil {
			priceSchemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		priceSchema, priceSchemaErr = compiler.Compile("price_schema.json")
	})
	return priceSchema, priceSchemaErr
}

// PriceDocument is the wire form of a market price file.
type PriceDocument struct {
	Date   string       `json:"date"`
	Prices []PriceQuote `json:"prices"`
}

// PriceQuote is one crop quote inside a PriceDocument.
type PriceQuote struct {
	CropCode    string          `json:"crop_code"`
	CropName    string          `json:"crop_name"`
	PricePerTon decimal.Decimal `json:"price_per_ton"`
}

// ReadPriceJSON parses and validates a price document. Every record inherits
// the document date.
func ReadPriceJSON(r io.Reader, name string) (core.PriceBatch, error) {
	batch := core.PriceBatch{Source: name}

	data, err := io.ReadAll(r)
	if err != nil {
		return batch, fmt.Errorf("failed to read %s: %w", name, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return batch, &core.RecordError{File: name, Column: "document", Err: err}
	}

	if missing := missingPriceFields(raw); len(missing) > 0 {
		return batch, &core.SchemaError{File: name, Missing: missing}
	}

	schema, err := compiledPriceSchema()
	if err != nil {
		return batch, err
	}
	if err := schema.Validate(raw); err != nil {
		return batch, &core.RecordError{File: name, Column: instanceLocation(err), Err: err}
	}

	var doc PriceDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return batch, &core.RecordError{File: name, Column: "document", Err: err}
	}

	batch.Date = doc.Date
	batch.Records = make([]core.MarketPriceRecord, 0, len(doc.Prices))
	for _, p := range doc.Prices {
		batch.Records = append(batch.Records, core.MarketPriceRecord{
			CropCode:    p.CropCode,
			CropName:    p.CropName,
			PricePerTon: p.PricePerTon,
			Date:        doc.Date,
		})
	}
	return batch, nil
}

// WritePriceJSON writes a price document with prices as bare JSON numbers.
func WritePriceJSON(w io.Writer, doc PriceDocument) error {
	type quote struct {
		CropCode    string      `json:"crop_code"`
		CropName    string      `json:"crop_name"`
		PricePerTon json.Number `json:"price_per_ton"`
	}
	out := struct {
		Date   string  `json:"date"`
		Prices []quote `json:"prices"`
	}{Date: doc.Date, Prices: make([]quote, 0, len(doc.Prices))}
	for _, p := range doc.Prices {
		out.Prices = append(out.Prices, quote{p.CropCode, p.CropName, json.Number(p.PricePerTon.String())})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// missingPriceFields reports absent required fields by path, e.g. "prices[2].price_per_ton".
func missingPriceFields(raw any) []string {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil // wrong shape; the schema reports it
	}
	var missing []string
	for _, k := range []string{"date", "prices"} {
		if _, ok := obj[k]; !ok {
			missing = append(missing, k)
		}
	}
	prices, _ := obj["prices"].([]any)
	for i, p := range prices {
		item, ok := p.(map[string]any)
		if !ok {
			continue
		}
		for _, k := range []string{"crop_code", "crop_name", "price_per_ton"} {
			if _, ok := item[k]; !ok {
				missing = append(missing, fmt.Sprintf("prices[%d].%s", i, k))
			}
		}
	}
	return missing
}

// instanceLocation returns the JSON pointer of the innermost failing value.
func instanceLocation(err error) string {
	ve, ok := err.(*jsonschema.ValidationError) //nolint:errorlint // Validate returns the concrete type
	if !ok {
		return "document"
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	if ve.InstanceLocation == "" {
		return "document"
	}
	return ve.InstanceLocation
}
