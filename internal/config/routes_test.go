package config

import (
	"reflect"
	"testing"
)

func TestParseRouteEntryForms(t *testing.T) {
	tests := []struct {
		name  string
		entry string
		want  Route
	}{
		{
			name:  "two fields source:target",
			entry: "-100111:-100222",
			want:  Route{SourceChatID: -100111, TargetChatID: -100222},
		},
		{
			name:  "three fields source:sourceTopic:target",
			entry: "-100111:42:-100222",
			want:  Route{SourceChatID: -100111, SourceTopicID: 42, TargetChatID: -100222},
		},
		{
			name:  "four fields with target topic",
			entry: "-100111:42:-100222:5",
			want:  Route{SourceChatID: -100111, SourceTopicID: 42, TargetChatID: -100222, TargetTopicID: 5},
		},
		{
			name:  "zero topic ids mean unset",
			entry: "-100111:0:-100222:0",
			want:  Route{SourceChatID: -100111, TargetChatID: -100222},
		},
		{
			name:  "whitespace tolerated",
			entry: " -100111 : 42 : -100222 ",
			want:  Route{SourceChatID: -100111, SourceTopicID: 42, TargetChatID: -100222},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRouteEntry(tt.entry)
			if err != nil {
				t.Fatalf("parseRouteEntry(%q) returned error: %v", tt.entry, err)
			}
			if got != tt.want {
				t.Errorf("parseRouteEntry(%q) = %+v, want %+v", tt.entry, got, tt.want)
			}
		})
	}
}

func TestParseRouteEntryMalformed(t *testing.T) {
	tests := []struct {
		name  string
		entry string
	}{
		{"single field", "-100111"},
		{"too many fields", "1:2:3:4:5"},
		{"non-numeric id", "-100111:abc"},
		{"missing target", "-100111:"},
		{"zero chat id", "0:-100222"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseRouteEntry(tt.entry); err == nil {
				t.Errorf("parseRouteEntry(%q) succeeded, want error", tt.entry)
			}
		})
	}
}

func TestParseSearchEntry(t *testing.T) {
	got, err := parseSearchEntry("s-gate:-100111:42:-100222")
	if err != nil {
		t.Fatalf("parseSearchEntry returned error: %v", err)
	}
	want := Route{SourceChatID: -100111, SourceTopicID: 42, TargetChatID: -100222, SearchKeyword: "gate"}
	if got != want {
		t.Errorf("parseSearchEntry = %+v, want %+v", got, want)
	}

	for _, entry := range []string{
		"gate:-100111:42:-100222", // missing prefix
		"s-:-100111:42:-100222",   // empty keyword
		"s-gate:-100111:42",       // missing target
		"s-gate:x:42:-100222",     // non-numeric source
	} {
		if _, err := parseSearchEntry(entry); err == nil {
			t.Errorf("parseSearchEntry(%q) succeeded, want error", entry)
		}
	}
}

func TestParseRoutesSkipsMalformedEntries(t *testing.T) {
	set, err := parseRoutes("-100111:-100222,bogus,-100333:7:-100444", "", "", "")
	if err != nil {
		t.Fatalf("parseRoutes returned error: %v", err)
	}
	if len(set.Routes) != 2 {
		t.Fatalf("got %d routes, want 2 (malformed entry skipped)", len(set.Routes))
	}
	if set.LegacyMode {
		t.Error("LegacyMode = true for modern configuration")
	}
}

func TestParseRoutesZeroValidIsFatal(t *testing.T) {
	if _, err := parseRoutes("bogus,also-bogus", "", "", ""); err == nil {
		t.Error("non-empty modern config with zero valid routes must fail")
	}
	if _, err := parseRoutes("", "s-:bad", "", ""); err == nil {
		t.Error("non-empty search config with zero valid routes must fail")
	}
}

func TestParseRoutesLegacyFallback(t *testing.T) {
	set, err := parseRoutes("", "", "-100111", "-100222")
	if err != nil {
		t.Fatalf("parseRoutes returned error: %v", err)
	}
	if !set.LegacyMode {
		t.Error("LegacyMode = false, want true")
	}
	want := Route{SourceChatID: -100111, TargetChatID: -100222}
	if len(set.Routes) != 1 || set.Routes[0] != want {
		t.Errorf("routes = %+v, want [%+v]", set.Routes, want)
	}

	if _, err := parseRoutes("", "", "", ""); err == nil {
		t.Error("empty configuration must fail")
	}
}

func TestRouteSetMatch(t *testing.T) {
	set := RouteSet{Routes: []Route{
		{SourceChatID: -100111, TargetChatID: -100222},
		{SourceChatID: -100111, SourceTopicID: 42, TargetChatID: -100333},
		{SourceChatID: -100999, TargetChatID: -100444},
	}}

	// Unpinned route matches any topic; pinned route only its own.
	got := set.Match(-100111, 42)
	if len(got) != 2 {
		t.Fatalf("Match(-100111, 42) returned %d routes, want 2", len(got))
	}

	got = set.Match(-100111, 7)
	if len(got) != 1 || got[0].TargetChatID != -100222 {
		t.Errorf("Match(-100111, 7) = %+v, want only the unpinned route", got)
	}

	if got := set.Match(-100555, 0); got != nil {
		t.Errorf("Match for unknown source = %+v, want nil", got)
	}
}

func TestRouteSetSourceChatIDs(t *testing.T) {
	set := RouteSet{Routes: []Route{
		{SourceChatID: -1, TargetChatID: -2},
		{SourceChatID: -1, TargetChatID: -3},
		{SourceChatID: -4, TargetChatID: -5},
	}}
	want := []int64{-1, -4}
	if got := set.SourceChatIDs(); !reflect.DeepEqual(got, want) {
		t.Errorf("SourceChatIDs = %v, want %v", got, want)
	}
}

func TestTargetKey(t *testing.T) {
	if got := TargetKey(-100222, 0); got != "-100222" {
		t.Errorf("TargetKey without topic = %q, want %q", got, "-100222")
	}
	if got := TargetKey(-100222, 5); got != "-100222:5" {
		t.Errorf("TargetKey with topic = %q, want %q", got, "-100222:5")
	}
}
