package research

import "testing"

func TestPlanWindowsCoversText(t *testing.T) {
	windows := planWindows(250, 100, 20, 8)

	want := []Window{{0, 100}, {80, 180}, {160, 250}}
	if len(windows) != len(want) {
		t.Fatalf("expected %d windows, got %d: %v", len(want), len(windows), windows)
	}
	for i, w := range want {
		if windows[i] != w {
			t.Fatalf("window %d: expected %v, got %v", i, w, windows[i])
		}
	}
	if windows[len(windows)-1].End != 250 {
		t.Fatalf("last window must reach text end, got %d", windows[len(windows)-1].End)
	}
}

func TestPlanWindowsSingleWhenTextFits(t *testing.T) {
	windows := planWindows(50, 100, 20, 8)
	if len(windows) != 1 || windows[0] != (Window{0, 50}) {
		t.Fatalf("expected single full window, got %v", windows)
	}
}

func TestPlanWindowsForcedStride(t *testing.T) {
	// pathological overlap >= window size must still advance
	windows := planWindows(300, 100, 100, 8)
	for i := 1; i < len(windows); i++ {
		if windows[i].Start <= windows[i-1].Start {
			t.Fatalf("window %d did not advance: %v", i, windows)
		}
	}
	if windows[len(windows)-1].End != 300 {
		t.Fatalf("windows must reach text end, got %v", windows)
	}
}

func TestPlanWindowsCap(t *testing.T) {
	windows := planWindows(10000, 100, 20, 3)
	if len(windows) != 3 {
		t.Fatalf("expected window cap of 3, got %d", len(windows))
	}
}

func TestPlanWindowsEmptyText(t *testing.T) {
	if windows := planWindows(0, 100, 20, 8); windows != nil {
		t.Fatalf("expected no windows for empty text, got %v", windows)
	}
}

func TestMergeWindowResults(t *testing.T) {
	cfg := defaultConfig()
	results := []*AnalysisResponse{
		{
			StepID:     1,
			Findings:   &Findings{Summary: "first half", PointsOfInterest: PointsOfInterest{"key_claims": {"claim one"}}},
			Confidence: 0.4,
		},
		{
			StepID:       1,
			Findings:     &Findings{Summary: "second half", PointsOfInterest: PointsOfInterest{"key_claims": {"claim two"}}},
			Confidence:   0.8,
			StillMissing: []string{"speaker names"},
		},
	}

	merged := mergeWindowResults(1, results, cfg)

	if merged.CompletionReason != "windowed" {
		t.Fatalf("expected completion reason windowed, got %q", merged.CompletionReason)
	}
	if merged.Confidence != 0.8 {
		t.Fatalf("expected max confidence 0.8, got %v", merged.Confidence)
	}
	if len(merged.Findings.PointsOfInterest["key_claims"]) != 2 {
		t.Fatalf("expected both claims kept, got %v", merged.Findings.PointsOfInterest["key_claims"])
	}
	if merged.Findings.Summary == "" ||
		merged.Findings.Summary == "first half" {
		t.Fatalf("expected concatenated summaries, got %q", merged.Findings.Summary)
	}
	if len(merged.StillMissing) != 1 {
		t.Fatalf("expected still_missing carried through, got %v", merged.StillMissing)
	}
}

func TestMergeWindowResultsCapsPOI(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxPOIPerWindow = 2

	var entries []any
	for i := 0; i < 10; i++ {
		entries = append(entries, "claim")
	}
	merged := mergeWindowResults(1, []*AnalysisResponse{
		{StepID: 1, Findings: &Findings{Summary: "s", PointsOfInterest: PointsOfInterest{"key_claims": entries}}},
	}, cfg)

	if got := len(merged.Findings.PointsOfInterest["key_claims"]); got != 2 {
		t.Fatalf("expected 2 entries after per-window cap, got %d", got)
	}
}
