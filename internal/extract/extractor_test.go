package extract

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

// minimalPDF builds a single-page PDF that draws text with a standard font.
func minimalPDF(t *testing.T, text string) []byte {
	t.Helper()
	stream := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func minimalXLSX(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Region")
	f.SetCellValue("Sheet1", "B1", "Revenue")
	f.SetCellValue("Sheet1", "A2", "North")
	f.SetCellValue("Sheet1", "B2", "1200")
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	return buf.Bytes()
}

func TestExtract_pdf(t *testing.T) {
	e := NewExtractor()
	got, err := e.Extract(bytes.NewReader(minimalPDF(t, "Quarterly revenue grew")), "q3.pdf")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(got, "Quarterly revenue grew") {
		t.Errorf("got %q", got)
	}
}

func TestExtract_pdfSniffedUnderUnsupportedName(t *testing.T) {
	e := NewExtractor()
	for _, name := range []string{"upload", "q1.bin", "report.pdf.download"} {
		got, err := e.Extract(bytes.NewReader(minimalPDF(t, "Sniffed")), name)
		if err != nil {
			t.Fatalf("%s: Extract: %v", name, err)
		}
		if !strings.Contains(got, "Sniffed") {
			t.Errorf("%s: got %q", name, got)
		}
	}
}

func TestExtract_knownExtensionIsNotSniffed(t *testing.T) {
	e := NewExtractor()
	got, err := e.Extract(strings.NewReader("%PDF-1.4 quoted in notes"), "notes.txt")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "%PDF-1.4 quoted in notes" {
		t.Errorf("got %q", got)
	}
}

func TestExtract_corruptPDF(t *testing.T) {
	e := NewExtractor()
	for name, payload := range map[string][]byte{
		"empty":   {},
		"garbage": []byte("this is not a pdf at all"),
		"header":  []byte("%PDF-1.4\ntruncated"),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := e.Extract(bytes.NewReader(payload), "report.pdf")
			if !errors.Is(err, ErrCorruptDocument) {
				t.Fatalf("want ErrCorruptDocument, got %v", err)
			}
			var extErr *ExtractionError
			if !errors.As(err, &extErr) {
				t.Fatalf("want *ExtractionError, got %T", err)
			}
			if extErr.Name != "report.pdf" || extErr.Format != ".pdf" {
				t.Errorf("unexpected error fields: %+v", extErr)
			}
		})
	}
}

func TestExtract_unsupported(t *testing.T) {
	e := NewExtractor()
	for _, name := range []string{"slides.pptx", "memo.docx", "noext"} {
		_, err := e.Extract(strings.NewReader("plain bytes"), name)
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("%s: want ErrUnsupportedFormat, got %v", name, err)
		}
	}
}

func TestExtract_excel(t *testing.T) {
	e := NewExtractor()
	got, err := e.ExtractBytes(minimalXLSX(t), "Sales.XLSX")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	want := "Sheet: Sheet1\nRegion | Revenue\nRegion: North; Revenue: 1200"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtract_excelSheetsAndBlankCells(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A2", "Quarter")
	f.SetCellValue("Sheet1", "B2", "Margin")
	f.SetCellValue("Sheet1", "A4", "Q1")
	f.SetCellValue("Sheet1", "B4", "  12%  ")
	f.SetCellValue("Sheet1", "C4", "restated")
	f.SetCellValue("Sheet1", "A5", "Q2")
	if _, err := f.NewSheet("Notes"); err != nil {
		t.Fatalf("NewSheet: %v", err)
	}
	f.SetCellValue("Notes", "A1", "prepared by finance")
	if _, err := f.NewSheet("Scratch"); err != nil {
		t.Fatalf("NewSheet: %v", err)
	}
	f.SetCellValue("Scratch", "A1", "draft figures")
	if err := f.SetSheetVisible("Scratch", false); err != nil {
		t.Fatalf("SetSheetVisible: %v", err)
	}
	if _, err := f.NewSheet("Empty"); err != nil {
		t.Fatalf("NewSheet: %v", err)
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	got, err := NewExtractor().ExtractBytes(buf.Bytes(), "margins.xlsx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	want := "Sheet: Sheet1\n" +
		"Quarter | Margin\n" +
		"Quarter: Q1; Margin: 12%; C: restated\n" +
		"Quarter: Q2\n\n" +
		"Sheet: Notes\n" +
		"prepared by finance"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtract_corruptExcel(t *testing.T) {
	e := NewExtractor()
	_, err := e.ExtractBytes([]byte("not a zip"), "sales.xlsx")
	if !errors.Is(err, ErrCorruptDocument) {
		t.Fatalf("want ErrCorruptDocument, got %v", err)
	}
}

func TestExtract_plain(t *testing.T) {
	e := NewExtractor()
	got, err := e.ExtractBytes([]byte("caf\xc3\xa9\nline 2"), "notes.md")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "café\nline 2" {
		t.Errorf("got %q", got)
	}
}

func TestExtract_plainInvalidUTF8(t *testing.T) {
	e := NewExtractor()
	got, err := e.ExtractBytes([]byte("hello\x80world"), "notes.txt")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "hello\uFFFDworld" {
		t.Errorf("got %q", got)
	}
}

func TestExtractFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "summary.txt")
	if err := os.WriteFile(path, []byte("Summary"), 0600); err != nil {
		t.Fatal(err)
	}
	got, err := NewExtractor().ExtractFile(path)
	if err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}
	if got != "Summary" {
		t.Errorf("got %q", got)
	}
	if _, err := NewExtractor().ExtractFile(filepath.Join(dir, "missing.pdf")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSupported(t *testing.T) {
	cases := map[string]bool{
		"a.pdf": true, "a.PDF": true, "a.xlsx": true, "a.txt": true, "a.md": true,
		"a.docx": false, "a": false,
	}
	for name, want := range cases {
		if got := Supported(name); got != want {
			t.Errorf("Supported(%q) = %v, want %v", name, got, want)
		}
	}
}
