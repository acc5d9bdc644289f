package main

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/paleotronic/rt11m8/disk"
)

// pdfRecoveryReport renders a printable recovery sheet for a catalogued
// volume: identity and checksums, the directory segment audit, and the
// recovered catalog. A QR code of the whole image checksum goes top right
// so the sheet can be matched back to its image with a phone camera.
// segs may be nil when only fingerprint data is available.
func pdfRecoveryReport(d *Disk, segs []disk.RT11SegmentHeader, out string) error {

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Volume Recovery Report", false)
	pdf.SetAuthor("rt11m8", false)
	pdf.SetCreator("rt11m8", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addChecksumQR(pdf, d.SHA256)
	addPDFTitle(pdf, "Volume Recovery Report")
	addVolumeSection(pdf, d)
	addSegmentAuditSection(pdf, d, segs)
	addCatalogSection(pdf, d.Files)

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addChecksumQR(pdf *gofpdf.Fpdf, hash string) {

	if hash == "" {
		return
	}

	png, err := qrcode.Encode(strings.ToUpper(hash), qrcode.Medium, 256)
	if err != nil {
		return
	}

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("sha256qr", opts, bytes.NewReader(png))

	w, _ := pdf.GetPageSize()
	_, _, right, _ := pdf.GetMargins()
	pdf.ImageOptions("sha256qr", w-right-28, 12, 28, 28, false, opts, 0, "")
}

func addVolumeSection(pdf *gofpdf.Fpdf, d *Disk) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Volume")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 10)
	items := []struct {
		label string
		value string
	}{
		{label: "Image", value: d.FullPath},
		{label: "Format", value: d.FormatID.String()},
		{label: "Blocks", value: strconv.Itoa(d.Blocks)},
		{label: "Files recovered", value: strconv.Itoa(len(d.Files))},
		{label: "SHA256", value: d.SHA256},
		{label: "SHA256 (active)", value: d.SHA256Active},
	}
	for _, item := range items {
		pdf.CellFormat(36, 6, item.label, "", 0, "L", false, 0, "")
		pdf.SetFont("Courier", "", 8)
		pdf.CellFormat(0, 6, item.value, "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
	}
	pdf.Ln(4)
}

func addSegmentAuditSection(pdf *gofpdf.Fpdf, d *Disk, segs []disk.RT11SegmentHeader) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Directory Segments")
	pdf.Ln(9)

	if d.Variant {
		pdf.SetFont("Helvetica", "I", 9)
		pdf.MultiCell(0, 5, fmt.Sprintf("Directory recovered away from the canonical block %d layout.", disk.RT11_CATALOG_BLOCK), "", "L", false)
		pdf.Ln(1)
	}

	if len(segs) == 0 {
		pdf.SetFont("Helvetica", "", 10)
		if len(d.SegmentBlocks) == 0 {
			pdf.MultiCell(0, 6, "No directory segments recovered.", "", "L", false)
		} else {
			blocks := make([]string, 0, len(d.SegmentBlocks))
			for _, b := range d.SegmentBlocks {
				blocks = append(blocks, strconv.Itoa(b))
			}
			pdf.MultiCell(0, 6, "Segments at blocks: "+strings.Join(blocks, ", "), "", "L", false)
		}
		pdf.Ln(4)
		return
	}

	headers := []string{"#", "Block", "Avail", "Next", "Highest", "Extra", "Data Start"}
	widths := []float64{12, 22, 22, 22, 22, 22, 28}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	lineHeight := 5.0
	for i, s := range segs {
		values := []string{
			strconv.Itoa(i),
			strconv.Itoa(s.Block),
			strconv.Itoa(s.SegmentsAvailable),
			strconv.Itoa(s.NextSegment),
			strconv.Itoa(s.HighestSegment),
			strconv.Itoa(s.ExtraBytes),
			strconv.Itoa(s.StartBlock),
		}
		renderTableRow(pdf, widths, values, lineHeight)
	}
	pdf.Ln(4)
}

func addCatalogSection(pdf *gofpdf.Fpdf, files DiskCatalog) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Catalog")
	pdf.Ln(9)

	if len(files) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, "No files recovered.", "", "L", false)
		return
	}

	headers := []string{"Name", "Kind", "Start", "Blocks", "Size", "Job", "Date"}
	widths := []float64{32, 26, 16, 18, 22, 16, 28}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	lineHeight := 5.0
	for _, f := range files {
		date := "-"
		if f.HasDate {
			date = f.Created.Format("02-Jan-2006")
		}
		values := []string{
			f.GetName(),
			emptyFallback(f.Kind, "-"),
			strconv.Itoa(f.StartBlock),
			strconv.Itoa(f.LengthBlocks),
			strconv.Itoa(f.Size),
			fmt.Sprintf("%#o", f.JobChannel),
			date,
		}
		renderTableRow(pdf, widths, values, lineHeight)
	}
	pdf.Ln(4)
}

func renderTableRow(pdf *gofpdf.Fpdf, widths []float64, values []string, lineHeight float64) {
	xStart := pdf.GetX()
	yStart := pdf.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		text := strings.TrimSpace(val)
		if text == "" {
			text = "-"
		}
		lines := pdf.SplitText(text, widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	rowHeight := float64(maxLines) * lineHeight
	x := xStart
	for i, lines := range splitCols {
		pdf.SetXY(x, yStart)
		cellText := strings.Join(lines, "\n")
		pdf.MultiCell(widths[i], lineHeight, cellText, "1", "L", false)
		x += widths[i]
	}
	pdf.SetXY(xStart, yStart+rowHeight)
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}
