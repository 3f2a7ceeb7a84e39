package scanner

import "testing"

func TestLeftPad(t *testing.T) {
	if got := LeftPad("123", 10); got != "0000000123" {
		t.Fatalf("pad mismatch: %s", got)
	}
	if got := LeftPad("12345678901", 10); got != "12345678901" {
		t.Fatalf("long input should be unchanged: %s", got)
	}
}

func TestClassifiers(t *testing.T) {
	if !AllDigits("0123") || AllDigits("") || AllDigits("12a") {
		t.Fatal("AllDigits mismatch")
	}
	if !AllAlpha("usd") || AllAlpha("US1") {
		t.Fatal("AllAlpha mismatch")
	}
	if !AllAlnum("TX1") || AllAlnum("TX-1") {
		t.Fatal("AllAlnum mismatch")
	}
	if got := RemoveSpaces("12 34 5"); got != "12345" {
		t.Fatalf("RemoveSpaces mismatch: %q", got)
	}
}
