package archivefs

import (
	"errors"
	"strings"
	"testing"
)

func TestPathErrorUnwrap(t *testing.T) {
	err := NotFound("getinfo", "/missing.txt")

	if !errors.Is(err, ErrNotExist) {
		t.Errorf("Expected errors.Is to match ErrNotExist, got %v", err)
	}

	var pathErr *PathError
	if !errors.As(err, &pathErr) {
		t.Fatalf("Expected *PathError, got %T", err)
	}
	if pathErr.Op != "getinfo" || pathErr.Path != "/missing.txt" {
		t.Errorf("Unexpected fields: %+v", pathErr)
	}
	if !strings.Contains(err.Error(), "/missing.txt") {
		t.Errorf("Expected path in message, got %q", err.Error())
	}
}

func TestCreateFailedWrapping(t *testing.T) {
	cause := errors.New("zip: not a valid zip file")

	err := CreateFailed(cause)
	if !errors.Is(err, ErrCreateFailed) {
		t.Errorf("Expected errors.Is to match ErrCreateFailed, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("Expected the cause to stay reachable, got %v", err)
	}

	if CreateFailed(nil) != nil {
		t.Error("Expected nil passthrough")
	}
}

func TestErrorsCollector(t *testing.T) {
	errs := Errors{}
	if errs.Errors() != nil {
		t.Error("Expected nil for empty collector")
	}

	errs.Add(nil)
	if errs.Errors() != nil {
		t.Error("Expected nil adds to be ignored")
	}

	first := errors.New("first failure")
	second := errors.New("second failure")
	errs.Add(first)
	errs.Add(second)

	joined := errs.Errors()
	if !errors.Is(joined, first) || !errors.Is(joined, second) {
		t.Errorf("Expected both failures preserved, got %v", joined)
	}
}

func TestVirtualFileModeString(t *testing.T) {
	cases := []struct {
		mode VirtualFileMode
		want string
	}{
		{ModeDir | 0755, "drwxr-xr-x"},
		{0644, "-rw-r--r--"},
		{0, "----------"},
	}

	for _, tc := range cases {
		if got := tc.mode.String(); got != tc.want {
			t.Errorf("VirtualFileMode(%o).String() = %q, want %q", uint32(tc.mode), got, tc.want)
		}
	}
}
