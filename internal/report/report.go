// Package report renders printable PDFs: the conflict audit report a
// reviewer hands off after an incident, and asset tag label sheets.
package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"

	"github.com/opslink-dev/fieldsync/internal/sync"
)

// ConflictReport renders the conflict history into a PDF: a summary
// block followed by one row per entry, escalated entries flagged.
func ConflictReport(entries []sync.ConflictLogEntry, stats sync.AuditStats, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	// Header
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "Sync Conflict Audit Report", "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated %s", generatedAt.UTC().Format("2006-01-02 15:04 MST")), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	// Summary
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 7, "Summary", "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Total conflicts: %d    Auto-resolved: %d    Escalated: %d    Last 24h: %d    Last 7d: %d",
		stats.Total, stats.AutoResolved, stats.Escalated, stats.Last24Hours, stats.Last7Days), "", 1, "L", false, 0, "")
	for table, count := range stats.ByTable {
		pdf.CellFormat(0, 5, fmt.Sprintf("    %s: %d", table, count), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	// Table header
	colWidths := []float64{42, 28, 34, 70, 50, 26, 27}
	headers := []string{"Time", "Table", "Record", "Fields resolved", "Escalations", "Status", "Reviewed"}
	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range headers {
		pdf.CellFormat(colWidths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for _, e := range entries {
		status := "auto-resolved"
		if !e.AutoResolved {
			status = "ESCALATED"
		}
		if e.Error != "" {
			status = "FAILED"
		}

		fields := ""
		for i, res := range e.Resolutions {
			if i > 0 {
				fields += ", "
			}
			fields += fmt.Sprintf("%s (%s)", res.Field, res.Source)
		}

		escalations := ""
		for i, name := range e.Escalations {
			if i > 0 {
				escalations += ", "
			}
			escalations += name
		}

		reviewed := ""
		if e.ReviewedAt != nil {
			reviewed = e.ReviewedBy
		}

		row := []string{
			time.UnixMilli(e.Timestamp).UTC().Format("2006-01-02 15:04:05"),
			e.TableName,
			truncate(e.RecordID, 18),
			truncate(fields, 44),
			truncate(escalations, 30),
			status,
			truncate(reviewed, 16),
		}
		for i, cell := range row {
			pdf.CellFormat(colWidths[i], 6, cell, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if len(entries) == 0 {
		pdf.CellFormat(0, 8, "No conflicts recorded.", "", 1, "L", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render conflict report: %w", err)
	}
	return buf.Bytes(), nil
}

// TagSheetConfig lays out an asset tag label sheet.
type TagSheetConfig struct {
	Cols       int     `json:"cols"`
	Rows       int     `json:"rows"`
	MarginTop  float64 `json:"marginTop"`
	MarginLeft float64 `json:"marginLeft"`
	GapX       float64 `json:"gapX"`
	GapY       float64 `json:"gapY"`
}

// AssetTag is one label on the sheet.
type AssetTag struct {
	TagCode string
	Name    string
}

// AssetTagSheet renders a printable sheet of QR labels, one per asset.
func AssetTagSheet(tags []AssetTag, cfg TagSheetConfig) ([]byte, error) {
	if cfg.Cols <= 0 {
		cfg.Cols = 3
	}
	if cfg.Rows <= 0 {
		cfg.Rows = 8
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetFont("Arial", "B", 10)

	// A4 dimensions
	pageWidth, pageHeight := 210.0, 297.0

	totalGapX := float64(cfg.Cols-1) * cfg.GapX
	totalGapY := float64(cfg.Rows-1) * cfg.GapY
	availW := pageWidth - (cfg.MarginLeft * 2)
	availH := pageHeight - (cfg.MarginTop * 2)
	labelW := (availW - totalGapX) / float64(cfg.Cols)
	labelH := (availH - totalGapY) / float64(cfg.Rows)

	labelsPerPage := cfg.Cols * cfg.Rows

	for i, tag := range tags {
		if i%labelsPerPage == 0 {
			pdf.AddPage()
		}

		indexOnPage := i % labelsPerPage
		col := indexOnPage % cfg.Cols
		row := indexOnPage / cfg.Cols

		x := cfg.MarginLeft + float64(col)*(labelW+cfg.GapX)
		y := cfg.MarginTop + float64(row)*(labelH+cfg.GapY)

		qrPng, err := qrcode.Encode(tag.TagCode, qrcode.Medium, 256)
		if err != nil {
			return nil, fmt.Errorf("failed to encode tag %s: %w", tag.TagCode, err)
		}

		imgName := fmt.Sprintf("tag_%d", i)
		imgOptions := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}
		_ = pdf.RegisterImageOptionsReader(imgName, imgOptions, bytes.NewReader(qrPng))

		qrSize := labelH * 0.7
		if qrSize > labelW {
			qrSize = labelW * 0.9
		}
		qrX := x + (labelW-qrSize)/2
		qrY := y + (labelH-qrSize)/2 - 2

		pdf.ImageOptions(imgName, qrX, qrY, qrSize, qrSize, false, imgOptions, 0, "")

		pdf.SetXY(x, y+labelH-6)
		pdf.SetFontSize(8)
		pdf.CellFormat(labelW, 5, tag.TagCode, "", 0, "C", false, 0, "")

		pdf.SetXY(x, y+1)
		pdf.SetFontSize(6)
		pdf.CellFormat(labelW, 3, truncate(tag.Name, 32), "", 0, "C", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render tag sheet: %w", err)
	}
	return buf.Bytes(), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
