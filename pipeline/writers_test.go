package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aluiziolira/go-shop-reviews/models"
)

func sampleRecords() []models.ShopReviewRecord {
	return []models.ShopReviewRecord{
		{
			ProductURL:      "http://example.test/listing/1",
			ProductName:     "Blue Mug",
			OccurrenceCount: 3,
			Currency:        models.StringPtr("CA$"),
			PriceAmount:     models.StringPtr("12.50"),
			ImageURL:        models.StringPtr("http://example.test/img.png"),
			Status:          models.StatusEnriched,
		},
		{
			ProductURL:      "http://example.test/listing/2",
			ProductName:     "Bowl",
			OccurrenceCount: 1,
			Status:          models.StatusFailed,
			EnrichError:     "status 404",
		},
	}
}

func TestCSVWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reviews.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}

	if err := writer.Write(sampleRecords()); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records=%d, want 3", len(records))
	}
	if records[0][0] != "product_url" || records[0][2] != "sales_count" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[1][2] != "3" || records[1][3] != "CA$" || records[1][4] != "12.50" {
		t.Fatalf("unexpected enriched row: %v", records[1])
	}
	if records[2][3] != "" || records[2][4] != "" || records[2][6] != "failed" {
		t.Fatalf("absent fields should be empty cells: %v", records[2])
	}
}

func TestJSONWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shop_reviews.json")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}

	records := sampleRecords()
	if err := writer.Write(records[:1]); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Write(records[1:]); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	var decoded []models.ShopReviewRecord
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid json array: %v\n%s", err, data)
	}
	if len(decoded) != 2 {
		t.Fatalf("json records=%d, want 2", len(decoded))
	}
	if decoded[0].ProductName != "Blue Mug" || decoded[0].OccurrenceCount != 3 {
		t.Fatalf("unexpected first record %+v", decoded[0])
	}
	if decoded[1].Currency != nil || decoded[1].PriceAmount != nil {
		t.Fatalf("absent price should stay absent, got %+v", decoded[1])
	}
	if !strings.HasPrefix(string(data), "[\n  {\n    \"product_url\"") {
		t.Fatalf("expected indented array, got %q", data[:min(len(data), 40)])
	}
}

func TestJSONWriterEmptyArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	var decoded []models.ShopReviewRecord
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(decoded) != 0 {
		t.Fatalf("expected empty array, got %d records", len(decoded))
	}
}

func TestJSONCompanion(t *testing.T) {
	tests := map[string]string{
		"output/shop_reviews.csv": "output/shop_reviews.json",
		"reviews":                 "reviews.json",
		"out.tsv":                 "out.json",
		"out.json":                "out.json.json",
	}
	for in, want := range tests {
		if got := JSONCompanion(in); got != want {
			t.Errorf("JSONCompanion(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDualWriterWrite(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out", "shop_reviews.csv")
	jsonPath := filepath.Join(dir, "out", "shop_reviews.json")

	writer, err := NewDualWriter(csvPath)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}

	if err := writer.Write(sampleRecords()); err != nil {
		t.Fatalf("write dual: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}

	if info, err := os.Stat(csvPath); err != nil || info.Size() == 0 {
		t.Fatalf("csv file missing or empty")
	}
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	var decoded []models.ShopReviewRecord
	if err := json.Unmarshal(data, &decoded); err != nil || len(decoded) != 2 {
		t.Fatalf("json companion holds %d records (err %v), want 2", len(decoded), err)
	}
}
