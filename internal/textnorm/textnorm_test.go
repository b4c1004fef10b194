package textnorm

import (
	"reflect"
	"testing"
)

func TestFold(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"Điện thoại dưới 10 triệu", "dien thoai duoi 10 trieu"},
		{"PIN TRÂU", "pin trau"},
		{"chụp ảnh đẹp", "chup anh dep"},
		{"iPhone 15 Pro", "iphone 15 pro"},
	}
	for _, tc := range tests {
		if got := Fold(tc.in); got != tc.want {
			t.Errorf("Fold(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFold_DecomposedInput(t *testing.T) {
	// "triệu" written with combining marks (NFD)
	decomposed := "triệu"
	if got := Fold(decomposed); got != "trieu" {
		t.Errorf("Fold(NFD) = %q, want %q", got, "trieu")
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("  Điện   Thoại  "); got != "điện thoại" {
		t.Errorf("Normalize = %q", got)
	}
}

func TestTokens(t *testing.T) {
	got := Tokens("Samsung, pin-trâu!")
	want := []string{"samsung", "pin", "trau"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokens = %v, want %v", got, want)
	}
}
