package acfs

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorStrings(t *testing.T) {
	cases := map[Error]string{
		ErrInvalidParam:       "invalid parameter",
		ErrNotInitialized:     "not initialized",
		ErrAlreadyInitialized: "already initialized",
		ErrNoSpace:            "no space left",
		ErrDataNotFound:       "data not found",
		ErrDataCorrupted:      "data corrupted",
		ErrIO:                 "io error",
		ErrInvalidFilesystem:  "invalid filesystem",
		ErrClusterFull:        "cluster table full",
		ErrCRCMismatch:        "crc mismatch",
	}
	for e, want := range cases {
		if e.Error() != want {
			t.Errorf("code %d reads %q instead of %q", e, e.Error(), want)
		}
	}
}

func TestErrorStringCodes(t *testing.T) {
	if got := ErrorString(0); got != "success" {
		t.Errorf("code 0 reads %q instead of \"success\"", got)
	}
	if got := ErrorString(4); got != "no space left" {
		t.Errorf("code 4 reads %q instead of \"no space left\"", got)
	}
	if got := ErrorString(200); got != "unknown error" {
		t.Errorf("code 200 reads %q instead of \"unknown error\"", got)
	}
}

func TestErrorCodesStable(t *testing.T) {
	// the numeric codes are part of the diagnostic surface
	want := []Error{
		1: ErrInvalidParam,
		2: ErrNotInitialized,
		3: ErrAlreadyInitialized,
		4: ErrNoSpace,
		5: ErrDataNotFound,
		6: ErrDataCorrupted,
		7: ErrIO,
		8: ErrInvalidFilesystem,
		9: ErrClusterFull,
		10: ErrCRCMismatch,
	}
	for code, e := range want {
		if code == 0 {
			continue
		}
		if uint8(e) != uint8(code) {
			t.Errorf("%v has code %d instead of %d", e, uint8(e), code)
		}
	}
}

func TestErrorWrapping(t *testing.T) {
	err := fmt.Errorf("somewhere deep: %w", ErrNoSpace)
	if !errors.Is(err, ErrNoSpace) {
		t.Fatalf("wrapped sentinel not recognized")
	}
	if errors.Is(err, ErrIO) {
		t.Fatalf("wrapped sentinel matched the wrong code")
	}
}
