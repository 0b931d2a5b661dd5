// Package reporting builds operator-facing summaries of the event log.
package reporting

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/lcalzada-xor/edgewatch/internal/core/domain"
	"github.com/lcalzada-xor/edgewatch/internal/core/ports"
)

// DailySummary aggregates one day of detections for reporting.
type DailySummary struct {
	Date       time.Time       `json:"date"`
	Total      int64           `json:"total"`
	ByType     []domain.Bucket `json:"by_type"`
	BySeverity []domain.Bucket `json:"by_severity"`
	ByHour     []domain.Bucket `json:"by_hour"`
}

// BuildDailySummary aggregates the store over one calendar day (UTC).
func BuildDailySummary(store ports.EventStore, day time.Time) (*DailySummary, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24*time.Hour - time.Second)

	byType, err := store.Aggregate(domain.GroupByType, start, end)
	if err != nil {
		return nil, err
	}
	bySeverity, err := store.Aggregate(domain.GroupBySeverity, start, end)
	if err != nil {
		return nil, err
	}
	byHour, err := store.Aggregate(domain.GroupByHour, start, end)
	if err != nil {
		return nil, err
	}

	return &DailySummary{
		Date:       start,
		Total:      byType.Total,
		ByType:     byType.Buckets,
		BySeverity: bySeverity.Buckets,
		ByHour:     byHour.Buckets,
	}, nil
}

// PDFExporter exports summaries to PDF format
type PDFExporter struct{}

// NewPDFExporter creates a new PDF exporter instance
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ExportDailySummary generates a PDF from a daily detection summary.
func (e *PDFExporter) ExportDailySummary(summary *DailySummary) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	// Header
	pdf.SetFont("Arial", "B", 22)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 14, "Edge Security Daily Summary", "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 11)
	pdf.SetTextColor(110, 110, 110)
	pdf.CellFormat(0, 7, summary.Date.Format("Monday, 2 January 2006"), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 7, fmt.Sprintf("Total detections: %d", summary.Total), "", 1, "L", false, 0, "")
	pdf.Ln(6)

	e.addBucketTable(pdf, "Detections by Attack Type", summary.ByType)
	e.addBucketTable(pdf, "Detections by Severity", summary.BySeverity)
	e.addBucketTable(pdf, "Detections by Hour", summary.ByHour)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *PDFExporter) addBucketTable(pdf *gofpdf.Fpdf, title string, buckets []domain.Bucket) {
	pdf.SetFont("Arial", "B", 13)
	pdf.SetTextColor(30, 30, 30)
	pdf.CellFormat(0, 9, title, "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(235, 238, 242)
	pdf.CellFormat(110, 7, "Key", "1", 0, "L", true, 0, "")
	pdf.CellFormat(40, 7, "Count", "1", 1, "R", true, 0, "")

	pdf.SetFont("Arial", "", 10)
	if len(buckets) == 0 {
		pdf.CellFormat(150, 7, "no detections", "1", 1, "L", false, 0, "")
	}
	for _, b := range buckets {
		key := b.Key
		if key == "" {
			key = "(unknown)"
		}
		pdf.CellFormat(110, 7, key, "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 7, fmt.Sprintf("%d", b.Count), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(6)
}
