package validate

import (
	"errors"
	"strings"
	"testing"

	"github.com/UsotsukiKaze/PicManager/internal/errs"
)

func TestAccount(t *testing.T) {
	for _, ok := range []string{"12345", "123456789012"} {
		if err := Account(ok); err != nil {
			t.Fatalf("Account(%q): %v", ok, err)
		}
	}
	for _, bad := range []string{"", "1234", "1234567890123", "12a45", "12 45"} {
		if err := Account(bad); !errors.Is(err, errs.ErrInvalidInput) {
			t.Fatalf("Account(%q) err = %v", bad, err)
		}
	}
}

func TestName(t *testing.T) {
	if err := Name("Band A"); err != nil {
		t.Fatalf("Name: %v", err)
	}
	for _, bad := range []string{"", "   ", strings.Repeat("x", 65)} {
		if err := Name(bad); !errors.Is(err, errs.ErrInvalidInput) {
			t.Fatalf("Name(%q) err = %v", bad, err)
		}
	}
}

func TestImageExt(t *testing.T) {
	got, err := ImageExt(".JPG")
	if err != nil || got != "jpg" {
		t.Fatalf("ImageExt = %q, %v", got, err)
	}
	if _, err := ImageExt("exe"); !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("ImageExt(exe) err = %v", err)
	}
}

func TestExtFromFilename(t *testing.T) {
	got, err := ExtFromFilename("photo.final.PNG")
	if err != nil || got != "png" {
		t.Fatalf("ExtFromFilename = %q, %v", got, err)
	}
	for _, bad := range []string{"noext", "trailing.", "bad.exe"} {
		if _, err := ExtFromFilename(bad); !errors.Is(err, errs.ErrInvalidInput) {
			t.Fatalf("ExtFromFilename(%q) err = %v", bad, err)
		}
	}
}
