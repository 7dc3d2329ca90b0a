package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aluiziolira/go-shop-reviews/models"
)

// DualWriter fans every batch out to a CSV file and a JSON array stored next to it.
type DualWriter struct {
	targets []namedWriter
	mu      sync.Mutex
}

type namedWriter struct {
	name string
	OutputWriter
}

// JSONCompanion returns the JSON path paired with a CSV path:
// output/shop_reviews.csv becomes output/shop_reviews.json.
func JSONCompanion(csvFilename string) string {
	ext := filepath.Ext(csvFilename)
	if strings.EqualFold(ext, ".json") {
		return csvFilename + ".json"
	}
	return strings.TrimSuffix(csvFilename, ext) + ".json"
}

// NewDualWriter opens csvFilename and its JSON companion.
func NewDualWriter(csvFilename string) (*DualWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, fmt.Errorf("dual writer: %w", err)
	}
	jsonWriter, err := NewJSONWriter(JSONCompanion(csvFilename))
	if err != nil {
		csvWriter.Close()
		return nil, fmt.Errorf("dual writer: %w", err)
	}

	return &DualWriter{
		targets: []namedWriter{
			{name: "csv", OutputWriter: csvWriter},
			{name: "json", OutputWriter: jsonWriter},
		},
	}, nil
}

// Write stops at the first target that fails.
func (dw *DualWriter) Write(records []models.ShopReviewRecord) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	for _, t := range dw.targets {
		if err := t.Write(records); err != nil {
			return fmt.Errorf("%s write: %w", t.name, err)
		}
	}
	return nil
}

// Close closes every target, even after a failure.
func (dw *DualWriter) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	return dw.each("close", OutputWriter.Close)
}

// Validate checks every target.
func (dw *DualWriter) Validate() error {
	return dw.each("validation", OutputWriter.Validate)
}

func (dw *DualWriter) each(op string, fn func(OutputWriter) error) error {
	var errs []error
	for _, t := range dw.targets {
		if err := fn(t.OutputWriter); err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", t.name, op, err))
		}
	}
	return errors.Join(errs...)
}
