package validation

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
)

func TestValidateAddress(t *testing.T) {
	valid := "0x" + strings.Repeat("aB", 20)
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"valid", valid, valid, nil},
		{"trimmed", "  " + valid + " ", valid, nil},
		{"empty", "   ", "", ErrAddressEmpty},
		{"no prefix", strings.Repeat("ab", 21), "", ErrAddressInvalid},
		{"short", "0x1234", "", ErrAddressInvalid},
		{"non hex", "0x" + strings.Repeat("zz", 20), "", ErrAddressInvalid},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateAddress(tc.input)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("ValidateAddress() err = %v, want %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("ValidateAddress() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestValidateCity_Valid(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantNorm string
	}{
		{"simple", "Paris", "Paris"},
		{"with space", "New York", "New York"},
		{"chinese", "上海", "上海"},
		{"trimmed", "  Boston  ", "Boston"},
		{"apostrophe", "L'Aquila", "L'Aquila"},
		{"period", "St. Louis", "St. Louis"},
		{"unicode", "Zürich", "Zürich"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateCity(tc.input, 100)
			if err != nil {
				t.Fatalf("ValidateCity() err = %v", err)
			}
			if got != tc.wantNorm {
				t.Errorf("normalized = %q, want %q", got, tc.wantNorm)
			}
		})
	}
}

func TestValidateCity_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"empty", "", ErrCityEmpty},
		{"tab", "\t", ErrCityEmpty},
		{"too long", strings.Repeat("a", 101), ErrCityTooLong},
		{"slash", "par/is", ErrCityInvalidChars},
		{"control", "par\x00is", ErrCityInvalidChars},
		{"angle", "<script>", ErrCityInvalidChars},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateCity(tc.input, 100)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("ValidateCity() err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestValidateDate(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"2025-08-01", false},
		{" 2024-02-29 ", false},
		{"2023-02-29", true},
		{"2025/08/01", true},
		{"20250801", true},
		{"", true},
	}
	for _, tc := range tests {
		_, err := ValidateDate(tc.input)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateDate(%q) err = %v, wantErr %v", tc.input, err, tc.wantErr)
		}
		if err != nil && !errors.Is(err, ErrDateInvalid) {
			t.Errorf("ValidateDate(%q) err = %v, want ErrDateInvalid", tc.input, err)
		}
	}
}

func TestValidateCoordinates(t *testing.T) {
	if err := ValidateCoordinates(48.8566, 2.3522); err != nil {
		t.Errorf("ValidateCoordinates(paris) err = %v", err)
	}
	if err := ValidateCoordinates(91, 0); !errors.Is(err, ErrCoordinatesInvalid) {
		t.Errorf("lat 91 err = %v, want ErrCoordinatesInvalid", err)
	}
	if err := ValidateCoordinates(0, -180.5); !errors.Is(err, ErrCoordinatesInvalid) {
		t.Errorf("lon -180.5 err = %v, want ErrCoordinatesInvalid", err)
	}
	if err := ValidateCoordinates(math.NaN(), 0); !errors.Is(err, ErrCoordinatesInvalid) {
		t.Errorf("lat NaN err = %v, want ErrCoordinatesInvalid", err)
	}
	if err := ValidateCoordinates(0, math.NaN()); !errors.Is(err, ErrCoordinatesInvalid) {
		t.Errorf("lon NaN err = %v, want ErrCoordinatesInvalid", err)
	}
}

func TestValidateFrameStyle(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"", "auto", false},
		{"AUTO", "auto", false},
		{"minimal", "minimal", false},
		{" pixel ", "pixel", false},
		{"baroque", "", true},
	}
	for _, tc := range tests {
		got, err := ValidateFrameStyle(tc.input)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateFrameStyle(%q) err = %v", tc.input, err)
		}
		if got != tc.want {
			t.Errorf("ValidateFrameStyle(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestIsInputError(t *testing.T) {
	if !IsInputError(fmt.Errorf("mint: %w", ErrDateInvalid)) {
		t.Error("wrapped ErrDateInvalid not recognized")
	}
	if IsInputError(errors.New("rpc down")) {
		t.Error("arbitrary error classified as input error")
	}
	if IsInputError(nil) {
		t.Error("nil classified as input error")
	}
}
