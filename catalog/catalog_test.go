package catalog

import (
	"errors"
	"math"
	"testing"
)

func TestFormatParseHours(t *testing.T) {
	for _, test := range []struct {
		hours float64
		want  string
	}{
		{0, "00:00:00.00"},
		{12.5, "12:30:00.00"},
		{23.99999999, "00:00:00.00"},
		{-1, "23:00:00.00"},
		{5 + 59.0/60 + 59.994/3600, "05:59:59.99"},
	} {
		got := FormatHours(test.hours)
		if got != test.want {
			t.Errorf("FormatHours(%v) = %q, want %q", test.hours, got, test.want)
		}
		back, err := ParseHours(got + "#")
		if err != nil {
			t.Errorf("ParseHours(%q): %v", got, err)
		}
		if math.Abs(math.Mod(back-test.hours+48, 24)) > 1e-4 && math.Abs(math.Mod(back-test.hours+48, 24)-24) > 1e-4 {
			t.Errorf("ParseHours(%q) = %v, want %v", got, back, test.hours)
		}
	}
}

func TestFormatParseDegrees(t *testing.T) {
	for _, test := range []struct {
		degrees float64
		want    string
	}{
		{0, "+00*00:00.0"},
		{45.5, "+45*30:00.0"},
		{-0.5, "-00*30:00.0"},
		{-89.25, "-89*15:00.0"},
	} {
		got := FormatDegrees(test.degrees)
		if got != test.want {
			t.Errorf("FormatDegrees(%v) = %q, want %q", test.degrees, got, test.want)
		}
		back, err := ParseDegrees(got + "#")
		if err != nil {
			t.Errorf("ParseDegrees(%q): %v", got, err)
		}
		if math.Abs(back-test.degrees) > 1e-4 {
			t.Errorf("ParseDegrees(%q) = %v, want %v", got, back, test.degrees)
		}
	}
}

func TestParseMalformed(t *testing.T) {
	for _, input := range []string{"", "#", "abc#", "12#", "12:61:00#", "1:2:3:4#"} {
		if _, err := ParseHours(input); !errors.Is(err, ErrMalformed) {
			t.Errorf("ParseHours(%q) err = %v, want ErrMalformed", input, err)
		}
	}
	if _, err := ParseInt("x#"); !errors.Is(err, ErrMalformed) {
		t.Errorf("ParseInt err = %v, want ErrMalformed", err)
	}
}

func TestParseDomeAzimuth(t *testing.T) {
	for _, test := range []struct {
		input string
		want  float64
	}{
		{"1800#", 180},
		{"0005#", 0.5},
		{"#", DomeUnknown},
		{"9999#", DomeUnknown},
	} {
		got, err := ParseDomeAzimuth(test.input)
		if err != nil {
			t.Errorf("ParseDomeAzimuth(%q): %v", test.input, err)
		}
		if math.Abs(got-test.want) > 1e-9 {
			t.Errorf("ParseDomeAzimuth(%q) = %v, want %v", test.input, got, test.want)
		}
	}
}

func TestParseSlew(t *testing.T) {
	if err := ParseSlew("0"); err != nil {
		t.Errorf("ParseSlew(0) = %v", err)
	}
	if err := ParseSlew("1Object Below Horizon        #"); err == nil {
		t.Error("ParseSlew accepted a rejection")
	}
}

func TestClassify(t *testing.T) {
	for code, want := range map[int]Status{
		-1: Disconnected,
		0:  Tracking,
		5:  Parked,
		6:  Slewing,
		2:  Slewing,
		7:  Unknown,
		99: Unknown,
	} {
		if got := Classify(code); got != want {
			t.Errorf("Classify(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestNoReply(t *testing.T) {
	for command, want := range map[string]bool{
		Stop:             true,
		SetSlewRate(10):  true,
		GetStatus:        false,
		SetTargetRA(1.5): false,
	} {
		if got := NoReply(command); got != want {
			t.Errorf("NoReply(%q) = %v, want %v", command, got, want)
		}
	}
}
