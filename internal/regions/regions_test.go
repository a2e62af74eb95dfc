package regions

import (
	"sort"
	"testing"
)

func TestCity(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"Московский", "Москва"},
		{"Центр ЕС ОрВД", "Москва"},
		{"Ростовский", "Ростов-на-Дону"},
		{"Калининградский", "Калининград"},
		{"Казанский", "Казанский"},
		{" Московский", " Московский"}, // exact match only
		{"московский", "московский"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			if got := City(tt.label); got != tt.want {
				t.Errorf("City(%q) = %q, want %q", tt.label, got, tt.want)
			}
		})
	}
}

func TestLabels(t *testing.T) {
	labels := Labels()
	if len(labels) != 15 {
		t.Errorf("got %d labels, want 15", len(labels))
	}
	if !sort.StringsAreSorted(labels) {
		t.Error("labels not sorted")
	}
	for _, l := range labels {
		if !Known(l) {
			t.Errorf("Known(%q) = false", l)
		}
	}
	if Known("Казанский") {
		t.Error("unexpected mapping for unknown label")
	}
}
