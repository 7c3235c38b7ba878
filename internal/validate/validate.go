// Package validate holds input checks shared by the API and the
// moderation engine.
package validate

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/UsotsukiKaze/PicManager/internal/errs"
)

const maxNameLen = 64

var allowedExts = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "webp": true, "gif": true, "bmp": true,
}

// Account checks an external account number: digits only, 5 to 12 long.
func Account(s string) error {
	if len(s) < 5 || len(s) > 12 {
		return fmt.Errorf("%w: account must be 5-12 digits", errs.ErrInvalidInput)
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return fmt.Errorf("%w: account must be 5-12 digits", errs.ErrInvalidInput)
		}
	}
	return nil
}

// Name checks a group or character name: non-blank, at most 64 runes.
func Name(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: name is required", errs.ErrInvalidInput)
	}
	if utf8.RuneCountInString(s) > maxNameLen {
		return fmt.Errorf("%w: name too long", errs.ErrInvalidInput)
	}
	return nil
}

// ImageExt normalizes and checks a bare extension (no dot).
func ImageExt(ext string) (string, error) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if !allowedExts[ext] {
		return "", fmt.Errorf("%w: unsupported image extension %q", errs.ErrInvalidInput, ext)
	}
	return ext, nil
}

// ExtFromFilename extracts and checks the extension of an uploaded
// filename.
func ExtFromFilename(filename string) (string, error) {
	i := strings.LastIndexByte(filename, '.')
	if i < 0 || i == len(filename)-1 {
		return "", fmt.Errorf("%w: filename has no extension", errs.ErrInvalidInput)
	}
	return ImageExt(filename[i+1:])
}
