package storage

import "testing"

func TestProductBucket(t *testing.T) {
	if got := ProductBucket(true); got != "cloudnet-product-volatile" {
		t.Errorf("ProductBucket(volatile) = %s", got)
	}
	if got := ProductBucket(false); got != "cloudnet-product" {
		t.Errorf("ProductBucket(stable) = %s", got)
	}
}

func TestVerifyDownload(t *testing.T) {
	tests := []struct {
		name     string
		tolerant bool
		gotSize  int64
		gotSum   string
		wantErr  bool
	}{
		{"match is always accepted", false, 100, "abc", false},
		{"size mismatch tolerated", true, 99, "abc", false},
		{"size mismatch strict", false, 99, "abc", true},
		{"checksum mismatch tolerated", true, 100, "xyz", false},
		{"checksum mismatch strict", false, 100, "xyz", true},
	}
	for _, test := range tests {
		err := verifyDownload(test.tolerant, "cloudnet-product", "file.nc", 100, test.gotSize, "abc", test.gotSum)
		if (err != nil) != test.wantErr {
			t.Errorf("%s: verifyDownload() error = %v, wantErr %v", test.name, err, test.wantErr)
		}
	}
}
