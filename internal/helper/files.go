package helper

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// WriteTempFile stores data in dir under a unique name built from a random token and filename.
// The returned cleanup removes the file; removal failures are logged, never returned.
func WriteTempFile(dir, filename string, data []byte) (string, func(), error) {
	if err := CreateFolder(dir); err != nil {
		return "", func() {}, err
	}
	path := filepath.Join(dir, ShortToken(32)+"_"+filepath.Base(filename))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", func() {}, fmt.Errorf("failed to write temp file: %w", err)
	}
	cleanup := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("Failed to remove temp file")
		}
	}
	return path, cleanup, nil
}

// SaveUpload keeps a copy of an uploaded file in dir as <stem>_<YYYYMMDD>_<token><ext>.
func SaveUpload(dir, filename string, data []byte, now time.Time) (string, error) {
	if err := CreateFolder(dir); err != nil {
		return "", err
	}
	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	path := filepath.Join(dir, fmt.Sprintf("%s_%s_%s%s", stem, now.Format("20060102"), ShortToken(8), ext))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	return path, nil
}
