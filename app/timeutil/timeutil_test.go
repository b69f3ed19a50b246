package timeutil

import (
	"errors"
	"testing"
	"time"
)

func mustZone(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := LoadZone(name)
	if err != nil {
		t.Fatalf("LoadZone(%s): %v", name, err)
	}
	return loc
}

func TestParseDateString_RFC822(t *testing.T) {
	got, err := ParseDateString("Wed, 18 Oct 2023 12:34:56 GMT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2023, 10, 18, 12, 34, 56, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseDateString_ISO(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"2024-03-01T09:00:00+09:00", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"2024-03-01T09:00:00Z", time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
		{"2024-03-01T09:00:00", time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
		{"2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDateString(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseDateString_Invalid(t *testing.T) {
	_, err := ParseDateString("not a date")
	var parseErr *DateParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected DateParseError, got %v", err)
	}
	if parseErr.Input != "not a date" {
		t.Errorf("error should name the offending input, got %q", parseErr.Input)
	}
}

func TestEntryTime_Priority(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	published := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	updated := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		entry EntryTimes
		want  time.Time
	}{
		{"published parsed wins", EntryTimes{PublishedParsed: &published, UpdatedParsed: &updated}, published},
		{"updated parsed second", EntryTimes{UpdatedParsed: &updated, Published: "2024-05-03T00:00:00Z"}, updated},
		{"published string third", EntryTimes{Published: "2024-05-03T00:00:00Z", Updated: "2024-05-04T00:00:00Z"}, time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)},
		{"dc date after updated string", EntryTimes{DCDate: "2024-05-05T00:00:00Z"}, time.Date(2024, 5, 5, 0, 0, 0, 0, time.UTC)},
		{"issued before created", EntryTimes{Issued: "2024-05-06", Created: "2024-05-07"}, time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)},
		{"falls back to now", EntryTimes{Published: "garbage"}, now},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EntryTime(tt.entry, now)
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseScheduleInput(t *testing.T) {
	loc := mustZone(t, "Asia/Tokyo")
	now := time.Date(2025, 10, 20, 3, 0, 0, 0, time.UTC) // 12:00 JST

	tests := []struct {
		input string
		want  time.Time
	}{
		{"now", now},
		{"+30m", now.Add(30 * time.Minute)},
		{"+2h", now.Add(2 * time.Hour)},
		{"+1d", now.Add(24 * time.Hour)},
		{"2025-10-21 15:00", time.Date(2025, 10, 21, 6, 0, 0, 0, time.UTC)},
		{"2025-10-21 15:00:30", time.Date(2025, 10, 21, 6, 0, 30, 0, time.UTC)},
		{"2025-10-21", time.Date(2025, 10, 21, 0, 0, 0, 0, time.UTC)}, // 09:00 JST
		{"18:30", time.Date(2025, 10, 20, 9, 30, 0, 0, time.UTC)},     // today 18:30 JST
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseScheduleInput(tt.input, loc, now)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseScheduleInput_Invalid(t *testing.T) {
	loc := mustZone(t, "Asia/Tokyo")
	now := time.Now()

	for _, input := range []string{"", "+5x", "+h", "tomorrow", "2025-13-40"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseScheduleInput(input, loc, now)
			var parseErr *DateParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected DateParseError for %q, got %v", input, err)
			}
			if parseErr.Zone != "Asia/Tokyo" {
				t.Errorf("error should carry the timezone context, got %q", parseErr.Zone)
			}
		})
	}
}

func TestLoadZone_Unknown(t *testing.T) {
	_, err := LoadZone("Mars/Olympus_Mons")
	var tzErr *UnknownTimezoneError
	if !errors.As(err, &tzErr) {
		t.Fatalf("expected UnknownTimezoneError, got %v", err)
	}
}

func TestRenderInZone(t *testing.T) {
	loc := mustZone(t, "Asia/Tokyo")
	instant := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)

	got := RenderInZone(instant, loc)
	want := "2024-02-29 09:00 (JST)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRoundTrip(t *testing.T) {
	loc := mustZone(t, "Asia/Tokyo")
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	// An unambiguous local wall-clock time must survive normalize + render.
	utc, err := ParseScheduleInput("2025-04-10 18:45", loc, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := RenderInZone(utc, loc); got != "2025-04-10 18:45 (JST)" {
		t.Errorf("round trip mismatch: %q", got)
	}
}

func TestFormatUTC(t *testing.T) {
	instant := time.Date(2024, 2, 29, 0, 0, 0, 123456789, time.FixedZone("JST", 9*3600))

	got := FormatUTC(instant)
	want := "2024-02-28T15:00:00Z"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	back, err := ParseUTC(got)
	if err != nil {
		t.Fatalf("ParseUTC: %v", err)
	}
	if FormatUTC(back) != got {
		t.Errorf("ParseUTC/FormatUTC not stable: %q", FormatUTC(back))
	}
}
