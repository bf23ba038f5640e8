package normalize

import "testing"

func TestEmail(t *testing.T) {
	in := "  John.DOE@Example.COM  "
	want := "john.doe@example.com"
	got := Email(in)
	if got != want {
		t.Fatalf("Normalize.Email(%q) = %q, want %q", in, got, want)
	}
}

func TestValidEmail(t *testing.T) {
	cases := map[string]bool{
		"alice@example.com":  true,
		" Bob@Example.org ":  true,
		"no-at-sign.com":     false,
		"missing@tld":        false,
		"spaces in@mail.com": false,
		"":                   false,
	}
	for in, want := range cases {
		if got := ValidEmail(in); got != want {
			t.Errorf("ValidEmail(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestPairKeyIsOrderIndependent(t *testing.T) {
	if PairKey("Bob@example.com", "alice@example.com") != PairKey("alice@example.com", "bob@example.com") {
		t.Fatal("PairKey should not depend on argument order or case")
	}
	if got := PairKey("b@x.io", "a@x.io"); got != "a@x.io|b@x.io" {
		t.Fatalf("unexpected pair key %q", got)
	}
}
