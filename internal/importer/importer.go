package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
)

type StockWriter interface {
	Add(ctx context.Context, productID string, payload domain.StockPayload) (domain.StockItem, error)
}

type ProductReader interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
}

// CSVImporter loads stock units from a CSV with product_id, kind and value
// columns. The payload kind is taken from the file and never guessed from the value.
type CSVImporter struct {
	reader   *csv.Reader
	stock    StockWriter
	products ProductReader
	logger   *zap.Logger
}

func NewCSVImporter(r io.Reader, stock StockWriter, products ProductReader, logger *zap.Logger) *CSVImporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	return &CSVImporter{
		reader:   csvr,
		stock:    stock,
		products: products,
		logger:   logger,
	}
}

type csvRow struct {
	line      int
	ProductID string
	Kind      string
	Value     string
}

// Run validates every row first and only then adds units, so a bad file
// leaves stock untouched. It returns the number of units added.
func (i *CSVImporter) Run(ctx context.Context) (int, error) {
	headers, err := i.reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)
	for _, col := range []string{"product_id", "kind", "value"} {
		if _, ok := index[col]; !ok {
			return 0, fmt.Errorf("missing column %q", col)
		}
	}

	var rows []csvRow
	line := 1
	for {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return 0, fmt.Errorf("read row %d: %w", line, err)
		}
		row := parseRow(record, index)
		if row == nil {
			continue
		}
		row.line = line
		rows = append(rows, *row)
	}

	payloads := make([]domain.StockPayload, len(rows))
	known := map[string]bool{}
	for n, row := range rows {
		if row.ProductID == "" || row.Value == "" {
			return 0, fmt.Errorf("row %d: product_id and value are required", row.line)
		}
		kind, err := domain.ParsePayloadKind(row.Kind)
		if err != nil {
			return 0, fmt.Errorf("row %d: %w", row.line, err)
		}
		if !known[row.ProductID] {
			p, err := i.products.GetByID(ctx, row.ProductID)
			if err != nil {
				return 0, fmt.Errorf("row %d: product %q: %w", row.line, row.ProductID, err)
			}
			if p.Infinite {
				return 0, fmt.Errorf("row %d: product %q has infinite stock", row.line, row.ProductID)
			}
			known[row.ProductID] = true
		}
		payloads[n] = domain.StockPayload{Kind: kind, Value: row.Value}
	}

	imported := 0
	for n, row := range rows {
		if _, err := i.stock.Add(ctx, row.ProductID, payloads[n]); err != nil {
			return imported, fmt.Errorf("add stock for %q: %w", row.ProductID, err)
		}
		imported++
	}
	i.logger.Info("stock imported", zap.Int("units", imported), zap.Int("products", len(known)))
	return imported, nil
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

func parseRow(record []string, index map[string]int) *csvRow {
	row := &csvRow{
		ProductID: pick(record, index, "product_id"),
		Kind:      strings.ToLower(pick(record, index, "kind")),
		Value:     pick(record, index, "value"),
	}
	if row.ProductID == "" && row.Kind == "" && row.Value == "" {
		return nil
	}
	return row
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}
