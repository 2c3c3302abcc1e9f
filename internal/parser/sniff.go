package parser

import (
	"bytes"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"ragchat/internal/models"
)

var formatNames = map[string]string{
	".pdf":      "PDF",
	".docx":     "DOCX",
	".pptx":     "PPTX",
	".xlsx":     "XLSX",
	".xlsm":     "XLSM",
	".xltx":     "XLTX",
	".md":       "Markdown",
	".markdown": "Markdown",
	".txt":      "text",
}

// Supported reports whether a loader exists for the file's extension.
func Supported(filename string) bool {
	_, ok := formatNames[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// CheckContent verifies that data looks like the format its extension claims,
// so a renamed file is rejected before anything is written.
func CheckContent(filename string, data []byte) error {
	ext := strings.ToLower(filepath.Ext(filename))
	name, ok := formatNames[ext]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrUnsupportedFileType, ext)
	}

	detected := http.DetectContentType(data)
	var valid bool
	switch ext {
	case ".pdf":
		valid = bytes.HasPrefix(data, []byte("%PDF-"))
	case ".docx", ".pptx", ".xlsx", ".xlsm", ".xltx":
		valid = detected == "application/zip"
	default:
		valid = strings.HasPrefix(detected, "text/")
	}
	if !valid {
		return fmt.Errorf("%w: content does not match the %s extension, expected a %s file but found %s",
			models.ErrUnsupportedFileType, ext, name, detected)
	}
	return nil
}
