package sampler

import "testing"

func TestStripPartitionSuffix(t *testing.T) {
	cases := map[string]string{
		"sda1":        "sda",
		"sda":         "sda",
		"vda2":        "vda",
		"nvme1n1p3":   "nvme1n1",
		"nvme0n1":     "nvme0n1",
		"mmcblk0p1":   "mmcblk0",
		"mapper-root": "mapper-root",
	}
	for in, want := range cases {
		if got := stripPartitionSuffix(in); got != want {
			t.Errorf("stripPartitionSuffix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStatFreeGBTruncates(t *testing.T) {
	s := Stat{FreeBytes: (3*(1<<30) + 500<<20)}
	if got := s.FreeGB(); got != 3 {
		t.Errorf("expected truncation to 3 GB, got %d", got)
	}
}

func TestSampleMissingMountErrors(t *testing.T) {
	if _, err := Sample("/this/path/does/not/exist/at/all"); err == nil {
		t.Fatal("expected error for inaccessible mount")
	}
}
