// Package extract parses staging files into core batches.
//
// A harvest log is a CSV file with one lot per row. A price document is a
// JSON object holding the quotes for one day. Both readers reject the whole
// file on the first structural or parse problem, so nothing downstream sees
// a partial batch.
package extract
