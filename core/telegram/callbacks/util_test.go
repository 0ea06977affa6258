package callbacks

import (
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestParseCallbackData(t *testing.T) {
	cases := []struct {
		name    string
		data    string
		unique  string
		payload string
	}{
		{"plain", "qty|5", "qty", "5"},
		{"formfeed prefix", "\fproduct|p1", "product", "p1"},
		{"escaped prefix", "\\fcart|", "cart", ""},
		{"no payload", "menu", "menu", ""},
		{"payload with pipe", "\fremove|a|b", "remove", "a|b"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			unique, payload := ParseCallbackData(&tele.Callback{Data: tc.data})
			if unique != tc.unique || payload != tc.payload {
				t.Fatalf("got (%q, %q), want (%q, %q)", unique, payload, tc.unique, tc.payload)
			}
		})
	}
}

func TestParseCallbackDataNil(t *testing.T) {
	unique, payload := ParseCallbackData(nil)
	if unique != "" || payload != "" {
		t.Fatalf("expected empty results, got (%q, %q)", unique, payload)
	}
}
