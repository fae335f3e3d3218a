package report

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"example.com/rrcforge/internal/common"
)

// SaveRunPDF renders the run report into a PDF document with the run
// digest embedded as a QR code for harness-side traceability.
func SaveRunPDF(rep RunReport, out string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Test Case Generation Report", false)
	pdf.SetAuthor("rrcforgectl", false)
	pdf.SetCreator("rrcforgectl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, "Test Case Generation Report")
	addSummarySection(pdf, rep)
	addSkipMatrixSection(pdf, rep.Counters.Skipped)
	addProblemsSection(pdf, rep.Problems)
	addDigestQR(pdf, rep.Digest())

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

func addSummarySection(pdf *gofpdf.Fpdf, rep RunReport) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Summary")
	pdf.Ln(8)

	skippedTotal := 0
	for _, n := range rep.Counters.Skipped {
		skippedTotal += n
	}

	pdf.SetFont("Helvetica", "", 11)
	items := []struct {
		label string
		value string
	}{
		{label: "Generated", value: rep.GeneratedAt.Format(time.RFC3339)},
		{label: "Message", value: emptyFallback(rep.MessageFile, "-")},
		{label: "Rule Pack", value: emptyFallback(rep.RulePackID, "-") + " " + rep.RuleVersion},
		{label: "Mode", value: emptyFallback(rep.Mode, "violate")},
		{label: "Fields Processed", value: strconv.Itoa(rep.Counters.FieldsProcessed)},
		{label: "Pairs Processed", value: strconv.Itoa(rep.Counters.PairsProcessed)},
		{label: "Test Cases", value: strconv.Itoa(rep.Counters.Generated)},
		{label: "Unique Pairs", value: strconv.Itoa(rep.UniquePairs)},
		{label: "Skipped", value: strconv.Itoa(skippedTotal)},
	}
	for _, item := range items {
		pdf.CellFormat(50, 6, item.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, item.value, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func addSkipMatrixSection(pdf *gofpdf.Fpdf, skipped map[string]int) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Skip Reasons")
	pdf.Ln(9)

	if len(skipped) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, "Nothing was skipped.", "", "L", false)
		pdf.Ln(4)
		return
	}

	reasons := make([]string, 0, len(skipped))
	for r := range skipped {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)

	headers := []string{"Reason", "Count"}
	widths := []float64{120, 30}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, r := range reasons {
		renderTableRow(pdf, widths, []string{r, strconv.Itoa(skipped[r])}, 5.0)
	}
	pdf.Ln(4)
}

func addProblemsSection(pdf *gofpdf.Fpdf, problems []common.ProblemEntry) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Problems")
	pdf.Ln(9)

	if len(problems) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, "No problems recorded.", "", "L", false)
		pdf.Ln(4)
		return
	}

	for i, p := range problems {
		pdf.SetFont("Helvetica", "B", 10)
		header := fmt.Sprintf("%d. %s", i+1, emptyFallback(p.Kind, "problem"))
		pdf.MultiCell(0, 5, header, "", "L", false)

		if msg := strings.TrimSpace(p.Reason); msg != "" {
			pdf.SetFont("Helvetica", "", 10)
			pdf.MultiCell(0, 5, msg, "", "L", false)
		}

		meta := problemMetadata(p)
		if meta != "" {
			pdf.SetFont("Helvetica", "", 9)
			pdf.MultiCell(0, 4, meta, "", "L", false)
		}
		pdf.Ln(2)
	}
	pdf.Ln(2)
}

func addDigestQR(pdf *gofpdf.Fpdf, digest string) {
	png, err := RunDigestQR(digest, 256)
	if err != nil {
		return
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	name := "run-digest"
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(png))
	pdf.ImageOptions(name, 15, pdf.GetY()+2, 30, 30, false, opts, 0, "")
	pdf.SetXY(50, pdf.GetY()+12)
	pdf.SetFont("Helvetica", "", 8)
	pdf.MultiCell(0, 4, "Run digest: "+digest, "", "L", false)
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

func problemMetadata(p common.ProblemEntry) string {
	parts := make([]string, 0, 4)
	if !p.Ts.IsZero() {
		parts = append(parts, p.Ts.Format(time.RFC3339))
	}
	if p.RuleID != "" {
		parts = append(parts, "Rule "+p.RuleID)
	}
	if len(p.FieldIDs) > 0 {
		ids := make([]string, len(p.FieldIDs))
		for i, id := range p.FieldIDs {
			ids[i] = strconv.Itoa(id)
		}
		parts = append(parts, "Fields "+strings.Join(ids, ","))
	}
	if p.Item != "" {
		parts = append(parts, p.Item)
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, " | ")
}
