package scratch_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/actris-cloudnet/cloudnet-processing/internal/scratch"
)

func TestCloseRemovesDirectoryAndContents(t *testing.T) {
	d, err := scratch.New("scratch-test")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(d.Path, "leftover.nc"), []byte("data"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if _, err := os.Stat(d.Path); !os.IsNotExist(err) {
		t.Errorf("directory %s still exists after Close", d.Path)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	d, err := scratch.New("scratch-test")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("first Close() error: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
	var nilDir *scratch.Dir
	if err := nilDir.Close(); err != nil {
		t.Errorf("nil Close() error: %v", err)
	}
}
