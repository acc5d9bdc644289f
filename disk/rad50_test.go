package disk

import "testing"

func TestRad50Decode(t *testing.T) {
	tests := []struct {
		word int
		want string
	}{
		{0, "   "},
		{1683, "ABC"},
		{39426, "XYZ"},
		{10215, "FOO"},
		{3259, "BAS"},
		{RAD50_WORD_LIMIT - 1, "999"},
	}
	for _, tt := range tests {
		if got := Rad50Decode(tt.word); got != tt.want {
			t.Errorf("Rad50Decode(%d) = %q, want %q", tt.word, got, tt.want)
		}
	}
}

func TestRad50DecodePlaceholder(t *testing.T) {
	// Words at or past the limit overflow only the leading symbol.
	if got := Rad50Decode(RAD50_WORD_LIMIT); got != "?  " {
		t.Errorf("Rad50Decode(%d) = %q, want %q", RAD50_WORD_LIMIT, got, "?  ")
	}
	if got := Rad50Decode(65535); got[0] != RAD50_PLACEHOLDER {
		t.Errorf("Rad50Decode(65535) = %q, want leading placeholder", got)
	}
	if Rad50WordValid(RAD50_WORD_LIMIT) {
		t.Errorf("Rad50WordValid(%d) = true, want false", RAD50_WORD_LIMIT)
	}
	if !Rad50WordValid(RAD50_WORD_LIMIT - 1) {
		t.Errorf("Rad50WordValid(%d) = false, want true", RAD50_WORD_LIMIT-1)
	}
}

func TestRad50RoundTrip(t *testing.T) {
	// Encode inverts decode for every word below the limit. Sampled with a
	// prime stride to touch all digit positions.
	for word := 0; word < RAD50_WORD_LIMIT; word += 997 {
		text := Rad50Decode(word)
		if got := Rad50Encode(text); got != word {
			t.Fatalf("Rad50Encode(Rad50Decode(%d)) = %d", word, got)
		}
	}
}

func TestRad50EncodeUnknownRunes(t *testing.T) {
	// Characters outside the alphabet encode as the space symbol.
	if got := Rad50Encode("A#C"); got != Rad50Encode("A C") {
		t.Errorf("Rad50Encode(\"A#C\") = %d, want %d", got, Rad50Encode("A C"))
	}
	if got := Rad50Encode("abc"); got != 1683 {
		t.Errorf("Rad50Encode(\"abc\") = %d, want 1683", got)
	}
}

func TestRad50DecodeName(t *testing.T) {
	name, ext, ok := Rad50DecodeName(10215, 0, 3259)
	if !ok || name != "FOO" || ext != "BAS" {
		t.Errorf("Rad50DecodeName = %q,%q,%v, want FOO,BAS,true", name, ext, ok)
	}

	// Blank name words are not a file.
	if _, _, ok := Rad50DecodeName(0, 0, 3259); ok {
		t.Error("Rad50DecodeName accepted an empty name")
	}

	// An empty extension is fine.
	name, ext, ok = Rad50DecodeName(10215, 0, 0)
	if !ok || name != "FOO" || ext != "" {
		t.Errorf("Rad50DecodeName = %q,%q,%v, want FOO,,true", name, ext, ok)
	}
}

func TestRad50EncodeName(t *testing.T) {
	w1, w2, w3 := Rad50EncodeName("FOO", "BAS")
	if w1 != 10215 || w2 != 0 || w3 != 3259 {
		t.Errorf("Rad50EncodeName(FOO,BAS) = %d,%d,%d, want 10215,0,3259", w1, w2, w3)
	}

	name, ext, ok := Rad50DecodeName(Rad50EncodeName("SWAP", "SYS"))
	if !ok || name != "SWAP" || ext != "SYS" {
		t.Errorf("round trip SWAP.SYS = %q,%q,%v", name, ext, ok)
	}
}
