package writer

import "testing"

func TestAggregateTracerOutputSumsPerPID(t *testing.T) {
	out := []byte("1234 ffmpeg 1048576\n1234 ffmpeg 2097152\n5678 rsync 4096\n")
	agg := aggregateTracerOutput(out)

	if len(agg) != 2 {
		t.Fatalf("expected 2 PIDs, got %d", len(agg))
	}
	if agg[1234].bytes != 3*1048576 {
		t.Errorf("expected summed bytes for pid 1234, got %d", agg[1234].bytes)
	}
	if agg[5678].comm != "rsync" {
		t.Errorf("expected comm rsync for pid 5678, got %q", agg[5678].comm)
	}
}

func TestAggregateTracerOutputSkipsHeaderAndMalformed(t *testing.T) {
	out := []byte("PID COMM BYTES\n1234 ffmpeg 1024\nnot-a-number bad 99\ntoo short\n")
	agg := aggregateTracerOutput(out)

	if len(agg) != 1 {
		t.Fatalf("expected 1 valid row, got %d", len(agg))
	}
	if agg[1234].bytes != 1024 {
		t.Errorf("expected 1024 bytes, got %d", agg[1234].bytes)
	}
}

func TestAggregateTracerOutputTruncatesLongComm(t *testing.T) {
	out := []byte("1 a-very-long-process-name-exceeding-limit 512\n")
	agg := aggregateTracerOutput(out)
	if len(agg[1].comm) > maxCommBytes {
		t.Errorf("expected comm truncated to %d bytes, got %q", maxCommBytes, agg[1].comm)
	}
}

func TestCheckTracerAvailableMissingBinary(t *testing.T) {
	if err := CheckTracerAvailable("definitely-not-a-real-tracer-binary"); err == nil {
		t.Error("expected error for missing tracer binary")
	}
}
