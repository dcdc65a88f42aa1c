package ussd

import "testing"

func TestParseInput(t *testing.T) {
	cases := []struct {
		text    string
		current string
		depth   int
	}{
		{"", "", 0},
		{"1", "1", 1},
		{"2*500", "500", 2},
		{"2*500* 1234 ", "1234", 3},
		{"3*", "", 2},
	}
	for _, tc := range cases {
		in := ParseInput(tc.text)
		if in.Current != tc.current || in.Depth != tc.depth {
			t.Fatalf("ParseInput(%q) = %+v", tc.text, in)
		}
	}
	if !ParseInput("").Empty() || ParseInput("1").Empty() {
		t.Fatalf("Empty mismatch")
	}
}

func TestMaskPhone(t *testing.T) {
	if got := maskPhone("2348031234567"); got != "2348****67" {
		t.Fatalf("maskPhone = %q", got)
	}
	if got := maskPhone("123"); got != "123" {
		t.Fatalf("short numbers are left alone, got %q", got)
	}
}

func TestBankCode(t *testing.T) {
	if code, ok := bankCode(DefaultBanks, "1"); !ok || code != "044" {
		t.Fatalf("bank 1 = %q %v", code, ok)
	}
	if _, ok := bankCode(DefaultBanks, "9"); ok {
		t.Fatalf("more banks is not a selection")
	}
}

func TestParseAmount(t *testing.T) {
	valid := map[string]string{
		"500":             "500",
		"0.5":             "0.5",
		"12.345678":       "12.345678",
		"000000000001.25": "1.25",
	}
	for token, want := range valid {
		got, ok := parseAmount(token)
		if !ok || got.String() != want {
			t.Fatalf("parseAmount(%q) = %s %v, want %s", token, got, ok, want)
		}
	}

	for _, token := range []string{
		"", "0", "0.000", "-5", "+5", "abc", "1e400", "1e9999999", "1E5", "5e-1",
		"1.1234567", "1234567890123", ".5", "5.", "1,000", " 5",
	} {
		if _, ok := parseAmount(token); ok {
			t.Fatalf("parseAmount(%q) should be rejected", token)
		}
	}
}
