package signal

import "testing"

func TestParseTokenActions(t *testing.T) {
	cases := []struct {
		data   string
		action Action
		corr   int
	}{
		{"open:42", ActionOpen, 42},
		{"ignore:42", ActionIgnore, 42},
		{"accept:7", ActionAccept, 7},
		{"decline_accept:7", ActionDeclineAccept, 7},
		{"register", ActionRegister, 0},
	}

	for _, c := range cases {
		tok := ParseToken(c.data)
		if tok.Action != c.action {
			t.Fatalf("ParseToken(%q) action = %v, want %v", c.data, tok.Action, c.action)
		}
		if tok.Correlation != c.corr {
			t.Fatalf("ParseToken(%q) correlation = %d, want %d", c.data, tok.Correlation, c.corr)
		}
	}
}

func TestParseTokenMalformedSuffix(t *testing.T) {
	tok := ParseToken("open:not-a-number")
	if tok.Action != ActionOpen {
		t.Fatalf("action = %v, want open", tok.Action)
	}
	if tok.Correlation != 0 {
		t.Fatalf("correlation = %d, want 0", tok.Correlation)
	}
}

func TestParseTokenUnknownAction(t *testing.T) {
	tok := ParseToken("self_destruct:5")
	if tok.Action != ActionUnknown {
		t.Fatalf("action = %v, want unknown", tok.Action)
	}
}

func TestParseTokenEmpty(t *testing.T) {
	tok := ParseToken("")
	if tok.Action != ActionUnknown {
		t.Fatalf("action = %v, want unknown", tok.Action)
	}
}

func TestFormatTokenRoundTrip(t *testing.T) {
	data := FormatToken(ActionAccept, 99)
	if data != "accept:99" {
		t.Fatalf("FormatToken = %q, want accept:99", data)
	}
	tok := ParseToken(data)
	if tok.Action != ActionAccept || tok.Correlation != 99 {
		t.Fatalf("round trip lost data: %+v", tok)
	}
}

func TestFormatTokenZeroCorrelation(t *testing.T) {
	if got := FormatToken(ActionRegister, 0); got != "register" {
		t.Fatalf("FormatToken = %q, want register", got)
	}
}
