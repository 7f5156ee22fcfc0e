package grocery

import "testing"

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Milk", "milk"},
		{"  Bananas ", "banana"},
		{"Free Range Eggs", "free range egg"},
		{"Crème Fraîche", "creme fraiche"},
		{"cherry tomatoes", "cherry tomato"},
		{"Strawberries", "strawberry"},
		{"peaches", "peach"},
		{"Swiss  cheese", "swiss cheese"},
		{"hummus", "hummus"},
		{"loaves", "loaf"},
		{"Full cream milk 2L", "full cream milk 2l"},
		{"coca-cola", "coca cola"},
		{"gas", "gas"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeLabel(tt.in); got != tt.want {
				t.Fatalf("NormalizeLabel(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseItem(t *testing.T) {
	tests := []struct {
		in        string
		wantLabel string
		wantQty   int
	}{
		{"bread", "bread", 1},
		{"2 eggs", "eggs", 2},
		{"milk x3", "milk", 3},
		{"Milk x 3", "milk", 3},
		{"3x yoghurt", "yoghurt", 3},
		{"  4   bananas ", "bananas", 4},
		{"2l milk", "2l milk", 1},
		{"0 eggs", "0 eggs", 1},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			label, qty := ParseItem(tt.in)
			if label != tt.wantLabel || qty != tt.wantQty {
				t.Fatalf("ParseItem(%q) = (%q, %d), want (%q, %d)", tt.in, label, qty, tt.wantLabel, tt.wantQty)
			}
		})
	}
}

func TestStatusResolved(t *testing.T) {
	for s, want := range map[Status]bool{
		StatusUnresolved:    false,
		StatusAmbiguous:     false,
		StatusAutoResolved:  true,
		StatusUserConfirmed: true,
	} {
		if s.Resolved() != want {
			t.Errorf("%s.Resolved() = %v, want %v", s, !want, want)
		}
	}
}
