package article

import (
	"testing"
)

func TestDecode_WellFormedRoundTrip(t *testing.T) {
	ids := []string{"art_0", "art_10", "art_1499", "chapter_2_7", "_5", "x_123456"}
	for _, id := range ids {
		t.Run(id, func(t *testing.T) {
			k := Decode(id)
			if !k.Valid {
				t.Fatalf("expected %q to decode as valid", id)
			}
			if !k.HasPrefix {
				t.Fatalf("expected %q to carry a prefix", id)
			}
			if got := Encode(k.Prefix, k.Position); got != id {
				t.Errorf("round trip: got %q, want %q", got, id)
			}
		})
	}
}

func TestDecode_SplitsOnLastSeparator(t *testing.T) {
	k := Decode("chapter_2_7")
	if k.Prefix != "chapter_2" {
		t.Errorf("got prefix %q, want %q", k.Prefix, "chapter_2")
	}
	if k.Position != 7 {
		t.Errorf("got position %d, want 7", k.Position)
	}
}

func TestDecode_BareInteger(t *testing.T) {
	k := Decode("42")
	if !k.Valid || k.HasPrefix {
		t.Fatalf("expected valid key without prefix, got %+v", k)
	}
	if k.Position != 42 {
		t.Errorf("got position %d, want 42", k.Position)
	}
	if k.String() != "42" {
		t.Errorf("got %q, want %q", k.String(), "42")
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{"empty", ""},
		{"non_integer_suffix", "art_abc"},
		{"empty_suffix", "art_"},
		{"negative_suffix", "art_-3"},
		{"signed_suffix", "art_+3"},
		{"plain_word", "preamble"},
		{"space_in_suffix", "art_ 4"},
		{"overflow", "art_99999999999999999999999"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := Decode(tt.id)
			if k.Valid {
				t.Fatalf("expected %q to be unparseable", tt.id)
			}
			if k.Position != 0 {
				t.Errorf("got position %d, want 0", k.Position)
			}
			if k.HasPrefix {
				t.Errorf("unparseable key should have no prefix")
			}
			if k.String() != tt.id {
				t.Errorf("unparseable key should normalize to itself, got %q", k.String())
			}
		})
	}
}

func TestKey_At(t *testing.T) {
	if got := Decode("art_10").At(9); got != "art_9" {
		t.Errorf("got %q, want art_9", got)
	}
	if got := Decode("10").At(11); got != "11" {
		t.Errorf("got %q, want 11", got)
	}
}

func TestKey_LessBreaksTiesByIdentifier(t *testing.T) {
	a := Decode("a_3")
	b := Decode("b_3")
	if !a.Less(b) || b.Less(a) {
		t.Errorf("expected a_3 < b_3 on tie")
	}
	if !Decode("art_2").Less(Decode("art_10")) {
		t.Errorf("expected numeric ordering, not lexical")
	}
}

func TestRange(t *testing.T) {
	got := Range("art", 3, 6)
	want := []string{"art_3", "art_4", "art_5"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %q, want %q", i, got[i], want[i])
		}
	}
	if Range("art", 5, 5) != nil {
		t.Errorf("empty range should be nil")
	}
}
