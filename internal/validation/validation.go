package validation

import (
	"errors"
	"math"
	"strings"
	"time"
	"unicode"
)

// ErrAddressEmpty is returned when the wallet address is empty or whitespace-only.
var ErrAddressEmpty = errors.New("address is required")

// ErrAddressInvalid is returned when the address is not a 0x-prefixed 20-byte hex string.
var ErrAddressInvalid = errors.New("address must be a 0x-prefixed 40 hex character string")

// ErrCityEmpty is returned when city is empty or whitespace-only after trim.
var ErrCityEmpty = errors.New("city is required")

// ErrCityTooLong is returned when city length exceeds the maximum.
var ErrCityTooLong = errors.New("city too long")

// ErrCityInvalidChars is returned when city contains disallowed characters.
var ErrCityInvalidChars = errors.New("city contains invalid characters")

// ErrDateInvalid is returned when date is not a YYYY-MM-DD calendar day.
var ErrDateInvalid = errors.New("date must be YYYY-MM-DD")

// ErrCoordinatesInvalid is returned when latitude or longitude are out of range.
var ErrCoordinatesInvalid = errors.New("latitude must be within [-90, 90] and longitude within [-180, 180]")

// ErrStyleInvalid is returned for a frame style other than auto, minimal or pixel.
var ErrStyleInvalid = errors.New("frameStyle must be auto, minimal or pixel")

// DateLayout is the canonical calendar-day format used in eligibility keys and metadata.
const DateLayout = "2006-01-02"

// MaxCityLength bounds city names in runes.
const MaxCityLength = 100

var inputErrors = []error{
	ErrAddressEmpty, ErrAddressInvalid, ErrCityEmpty, ErrCityTooLong,
	ErrCityInvalidChars, ErrDateInvalid, ErrCoordinatesInvalid, ErrStyleInvalid,
}

// IsInputError reports whether err wraps one of the validation sentinels.
func IsInputError(err error) bool {
	for _, target := range inputErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ValidateAddress trims the input and checks it is a 0x-prefixed 40 hex digit address.
// Case is preserved; checksum casing is not verified.
func ValidateAddress(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrAddressEmpty
	}
	if len(s) != 42 || !(strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) {
		return "", ErrAddressInvalid
	}
	for _, c := range s[2:] {
		if !isHex(c) {
			return "", ErrAddressInvalid
		}
	}
	return s, nil
}

// ValidateCity trims the input, enforces maxLen in runes, and restricts to
// letters (Unicode), digits, space, comma, hyphen, period and apostrophe.
func ValidateCity(input string, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return "", ErrCityEmpty
	}
	if maxLen > 0 && len(r) > maxLen {
		return "", ErrCityTooLong
	}
	for _, c := range r {
		if !isAllowedCityRune(c) {
			return "", ErrCityInvalidChars
		}
	}
	return s, nil
}

// ValidateDate checks the input parses as a YYYY-MM-DD day.
func ValidateDate(input string) (string, error) {
	s := strings.TrimSpace(input)
	if _, err := time.Parse(DateLayout, s); err != nil {
		return "", ErrDateInvalid
	}
	return s, nil
}

// ValidateCoordinates checks latitude and longitude ranges. NaN is out of range.
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return ErrCoordinatesInvalid
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return ErrCoordinatesInvalid
	}
	return nil
}

// ValidateFrameStyle normalizes an optional frame style; empty means auto.
func ValidateFrameStyle(input string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	switch s {
	case "":
		return "auto", nil
	case "auto", "minimal", "pixel":
		return s, nil
	}
	return "", ErrStyleInvalid
}

func isHex(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}
