package schedule

import "testing"

func TestValidate(t *testing.T) {
	t.Parallel()
	ok := Normalize(Schedule{
		Name:      " Morning digest ",
		Frequency: "Daily",
		Time:      "09:00",
		SourceURL: "https://example.com/feed.xml",
	})
	if err := Validate(ok); err != nil {
		t.Fatalf("Validate(valid) = %v", err)
	}
	if ok.MaxArticles != DefaultMaxArticles || ok.Frequency != Daily || ok.Name != "Morning digest" {
		t.Fatalf("Normalize did not apply defaults: %+v", ok)
	}
	if got := Normalize(Schedule{Time: " 7:05"}).Time; got != "07:05" {
		t.Fatalf("Normalize time = %q, want 07:05", got)
	}

	bad := []Schedule{
		{Name: "", Frequency: Daily, Time: "09:00", SourceURL: "https://example.com", MaxArticles: 5},
		{Name: "x", Frequency: "hourly", Time: "09:00", SourceURL: "https://example.com", MaxArticles: 5},
		{Name: "x", Frequency: Daily, Time: "nine", SourceURL: "https://example.com", MaxArticles: 5},
		{Name: "x", Frequency: Daily, Time: "09:00", SourceURL: "not a url", MaxArticles: 5},
		{Name: "x", Frequency: Daily, Time: "09:00", SourceURL: "https://example.com", MaxArticles: -1},
		{Name: "x", Frequency: Daily, Time: "09:00", SourceURL: "https://example.com", MaxArticles: MaxArticlesLimit + 1},
	}
	for i, s := range bad {
		err := Validate(s)
		if err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
		if !IsValidation(err) {
			t.Fatalf("case %d: IsValidation(%v) = false", i, err)
		}
	}
}

func TestPatchApply(t *testing.T) {
	t.Parallel()
	base := Schedule{Name: "a", Frequency: Daily, Time: "09:00", Enabled: true}

	name := "b"
	out, timing := Patch{Name: &name}.Apply(base)
	if timing || out.Name != "b" {
		t.Fatalf("name-only patch: timing=%v out=%+v", timing, out)
	}

	same := "09:00"
	if _, timing := (Patch{Time: &same}).Apply(base); timing {
		t.Fatal("unchanged time should not count as a timing change")
	}

	weekly := Weekly
	out, timing = Patch{Frequency: &weekly}.Apply(base)
	if !timing || out.Frequency != Weekly {
		t.Fatalf("frequency patch: timing=%v out=%+v", timing, out)
	}
	if !(Patch{}).Empty() {
		t.Fatal("zero patch should be empty")
	}
}
