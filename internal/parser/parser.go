package parser

import (
	"archive/zip"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"

	"ragchat/internal/models"
)

var (
	docxParagraph = regexp.MustCompile(`(?s)<w:p[ >].*?</w:p>`)
	docxText      = regexp.MustCompile(`(?s)<w:t(?: [^>]*)?>(.*?)</w:t>`)
	slideName     = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	slideText     = regexp.MustCompile(`(?s)<a:t>(.*?)</a:t>`)
)

// Parse extracts ordered text units from the document at filePath, picking a loader by extension.
// Failures to read the file, and files that yield no units, are reported as ErrUnreadableDocument.
func Parse(filePath string) ([]models.TextUnit, error) {
	ext := strings.ToLower(filepath.Ext(filePath))

	var (
		units []models.TextUnit
		err   error
	)
	switch ext {
	case ".pdf":
		units, err = parsePDF(filePath)
	case ".docx":
		units, err = parseDOCX(filePath)
	case ".pptx":
		units, err = parsePPTX(filePath)
	case ".xlsx":
		units, err = parseXLSX(filePath)
	case ".xlsm", ".xltx":
		units, err = parseWorkbook(filePath)
	case ".md", ".markdown":
		units, err = parseMarkdown(filePath)
	case ".txt":
		units, err = parseText(filePath)
	default:
		return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedFileType, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrUnreadableDocument, filepath.Base(filePath), err)
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("%w: %s: no text units", models.ErrUnreadableDocument, filepath.Base(filePath))
	}
	log.Debug().Str("file", filepath.Base(filePath)).Int("units", len(units)).Msg("Parsed document")
	return units, nil
}

// parsePDF returns one unit per page, blank pages included, so the unit count is the page count.
func parsePDF(filePath string) (units []models.TextUnit, err error) {
	// the pdf reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			units, err = nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, err
	}

	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			units = append(units, models.TextUnit{PageNumber: i})
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		units = append(units, models.TextUnit{Content: pageText, PageNumber: i})
	}
	return units, nil
}

// parseDOCX returns the whole document as one unit; Word files carry no page numbers.
func parseDOCX(filePath string) ([]models.TextUnit, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var paragraphs []string
	for _, p := range docxParagraph.FindAllString(r.Editable().GetContent(), -1) {
		var text strings.Builder
		for _, m := range docxText.FindAllStringSubmatch(p, -1) {
			text.WriteString(m[1])
		}
		if s := strings.TrimSpace(html.UnescapeString(text.String())); s != "" {
			paragraphs = append(paragraphs, s)
		}
	}
	if len(paragraphs) == 0 {
		return nil, nil
	}
	return []models.TextUnit{{Content: strings.Join(paragraphs, "\n\n")}}, nil
}

// parsePPTX returns one unit per slide, numbered by slide.
func parsePPTX(filePath string) ([]models.TextUnit, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var units []models.TextUnit
	for _, file := range f.File {
		m := slideName.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])

		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}

		var parts []string
		for _, t := range slideText.FindAllStringSubmatch(string(data), -1) {
			parts = append(parts, html.UnescapeString(t[1]))
		}
		units = append(units, models.TextUnit{Content: strings.Join(parts, " "), PageNumber: num})
	}
	sort.Slice(units, func(i, j int) bool { return units[i].PageNumber < units[j].PageNumber })
	return units, nil
}

// parseXLSX returns one tab-separated unit per sheet.
func parseXLSX(filePath string) ([]models.TextUnit, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, err
	}

	var units []models.TextUnit
	for sheetNum, sheet := range f.Sheets {
		rows := make([][]string, 0, len(sheet.Rows))
		for _, row := range sheet.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			rows = append(rows, cells)
		}
		units = append(units, sheetUnit(sheet.Name, rows, sheetNum+1))
	}
	return units, nil
}

// parseWorkbook reads macro-enabled workbooks and templates through excelize.
func parseWorkbook(filePath string) ([]models.TextUnit, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var units []models.TextUnit
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheetName, err)
		}
		units = append(units, sheetUnit(sheetName, rows, sheetNum+1))
	}
	return units, nil
}

func sheetUnit(name string, rows [][]string, num int) models.TextUnit {
	var text strings.Builder
	fmt.Fprintf(&text, "Sheet: %s\n", name)
	for _, row := range rows {
		text.WriteString(strings.Join(row, "\t"))
		text.WriteString("\n")
	}
	return models.TextUnit{Content: text.String(), PageNumber: num}
}

func parseText(filePath string) ([]models.TextUnit, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return []models.TextUnit{{Content: string(data)}}, nil
}
