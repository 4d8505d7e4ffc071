package langhint

import "testing"

func TestDetect(t *testing.T) {
	tests := []struct {
		name, in     string
		script, lang string
	}{
		{"empty", "", "", ""},
		{"digits only", "12345 678", "", ""},
		{"latin is ambiguous", "Ceci est une phrase en français assez longue", "Latin", ""},
		{"greek", "Αυτή είναι μια αρκετά μεγάλη ελληνική πρόταση", "Greek", "el"},
		{"korean", "이것은 충분히 긴 한국어 문장입니다 정말로 그렇습니다", "Hangul", "ko"},
		{"japanese with han majority", "日本語の文章はとても長くて漢字が多いです東京都庁", "Han", "ja"},
		{"short greek has no lang", "Γειά σου", "Greek", ""},
		{"cyrillic is ambiguous", "Это достаточно длинное предложение на русском", "Cyrillic", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Detect(tt.in)
			if h.Script != tt.script || h.Lang != tt.lang {
				t.Fatalf("Detect(%q) = %+v, want script=%q lang=%q", tt.in, h, tt.script, tt.lang)
			}
		})
	}
}

func TestDetect_Share(t *testing.T) {
	h := Detect("abcd αβγδ αβγδ")
	if h.Script != "Greek" || h.Share < 0.66 || h.Share > 0.67 {
		t.Fatalf("share = %+v", h)
	}
}
