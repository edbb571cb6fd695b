package settings

import (
	"strings"
	"testing"
)

func TestParseRGB(t *testing.T) {
	tests := []struct {
		in      string
		want    RGB
		wantErr bool
	}{
		{"#FF0000", RGB{255, 0, 0}, false},
		{"00ff7f", RGB{0, 255, 127}, false},
		{"#fff", RGB{255, 255, 255}, false},
		{" #000000 ", RGB{0, 0, 0}, false},
		{"#GG0000", RGB{}, true},
		{"red", RGB{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRGB(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRGB(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseRGB(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRGBHex(t *testing.T) {
	if got := (RGB{0x1a, 0x2b, 0x3c}).Hex(); got != "1A2B3C" {
		t.Errorf("Expected 1A2B3C, got %s", got)
	}
	if got := MustRGB("#abcdef").String(); got != "#ABCDEF" {
		t.Errorf("Expected #ABCDEF, got %s", got)
	}
}

func TestContrast(t *testing.T) {
	black, white := RGB{}, RGB{255, 255, 255}
	if black.Contrast(white) < 0.9 {
		t.Errorf("Expected black/white to be far apart, got %f", black.Contrast(white))
	}
	if black.Contrast(black) != 0 {
		t.Errorf("Expected zero distance for identical colours")
	}
}

func TestSpacingPreset(t *testing.T) {
	tests := map[string]int{
		"very-tight": -150,
		"Tight":      -50,
		"normal":     0,
		"Very Loose": 150,
		"very_loose": 150,
		"loose":      50,
	}
	for name, want := range tests {
		got, err := SpacingPreset(name)
		if err != nil {
			t.Errorf("SpacingPreset(%q) failed: %v", name, err)
			continue
		}
		if got != want {
			t.Errorf("SpacingPreset(%q) = %d, want %d", name, got, want)
		}
	}
	if _, err := SpacingPreset("cosy"); err == nil {
		t.Error("Expected error for unknown preset")
	}
	if got := strings.Join(SpacingPresetNames(), ","); got != "very-tight,tight,normal,loose,very-loose" {
		t.Errorf("Unexpected preset order %s", got)
	}
}

func TestDefaultIsValid(t *testing.T) {
	s := Default()
	if err := s.Validate(); err != nil {
		t.Fatalf("Default settings invalid: %v", err)
	}
	if !s.Bold || !s.RemoveDuplicates || s.EnableOCR || s.RemoveTheme {
		t.Errorf("Unexpected defaults %+v", s)
	}
	if s.FontSize() != 2400 {
		t.Errorf("Expected 2400, got %d", s.FontSize())
	}
}

func TestValidate(t *testing.T) {
	s := Default()
	s.EnableCustomFont = true
	s.FontFamily = " "
	if err := s.Validate(); err == nil {
		t.Error("Expected error for empty font family")
	}

	s = Default()
	s.EnableCustomFont = true
	s.FontSizePt = 0
	if err := s.Validate(); err == nil {
		t.Error("Expected error for zero font size")
	}

	s = Default()
	s.TextSpacing = 500000
	if err := s.Validate(); err == nil {
		t.Error("Expected error for spacing out of range")
	}

	s = Default()
	s.Abbreviations = []Abbreviation{{From: "two words", To: "x"}}
	if err := s.Validate(); err == nil {
		t.Error("Expected error for abbreviation with whitespace")
	}
}
