package relay

import (
	"reflect"
	"testing"
)

func TestButtonLinksOrderAndFiltering(t *testing.T) {
	rows := [][]Button{
		{
			{Label: "Open", URL: "https://a.example"},
			{Label: "Menu"}, // callback button, no URL
		},
		{
			{Label: "Join", URL: "https://b.example"},
		},
	}

	want := []string{
		"Open → https://a.example",
		"Join → https://b.example",
	}
	if got := ButtonLinks(rows); !reflect.DeepEqual(got, want) {
		t.Errorf("ButtonLinks = %v, want %v", got, want)
	}
}

func TestButtonLinksEmpty(t *testing.T) {
	if got := ButtonLinks(nil); got != nil {
		t.Errorf("ButtonLinks(nil) = %v, want nil", got)
	}
	if got := ButtonLinks([][]Button{{{Label: "x"}}}); got != nil {
		t.Errorf("ButtonLinks with no URL buttons = %v, want nil", got)
	}
}
