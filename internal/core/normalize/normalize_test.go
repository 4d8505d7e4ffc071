package normalize

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"empty", "", ""},
		{"case fold", "Bonjour LE Monde", "bonjour le monde"},
		{"whitespace and newlines", "  Bonjour\t le\n\n monde  ", "bonjour le monde"},
		{"nfkc fullwidth", "ＡＢＣ１２３", "abc123"},
		{"format runes", "zero\u200bwidth\u00adsoft", "zerowidthsoft"},
		{"invalid utf8 dropped", "ok\xffok", "okok"},
		{"german sharp s folds", "STRASSE straße", "strasse strasse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestKeyOf_EqualForCosmeticVariants(t *testing.T) {
	a := KeyOf("Le chat est sur le tapis.\nIl dort.")
	b := KeyOf("le chat  est sur le TAPIS. Il dort.  ")
	if a != b {
		t.Fatalf("cosmetic variants should share a key")
	}
	if a == KeyOf("Le chien est sur le tapis. Il dort.") {
		t.Fatalf("different text should not collide")
	}
}
