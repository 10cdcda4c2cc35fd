package dehyphenator

import "testing"

func TestDehyphenate(t *testing.T) {
	var cases = []struct{ name, in, want string }{
		{"no hyphens", "one line\nanother line", "one line\nanother line"},
		{"split word", "the recog-\nnition works", "the recognition\nworks"},
		{"only word moves up", "recog-\nnition\nnext", "recognition\nnext"},
		{"compound", "Ost-\nEuropa", "Ost-\nEuropa"},
		{"abbreviation", "the EU-\nmembers", "the EU-\nmembers"},
		{"trailing whitespace", "recog-  \n  nition done", "recognition\ndone"},
		{"blank line kept", "recog-\nnition\n\nnew paragraph", "recognition\n\nnew paragraph"},
		{"hyphen at end of text", "dangling-", "dangling-"},
		{"hyphen before blank line", "dangling-\n\nnext", "dangling-\n\nnext"},
		{"unicode hyphen", "Stra‐\nße", "Straße"},
		{"mrz fillers", "P<UTOERIKSSON<<ANNA<<<\nL898902C36UTO", "P<UTOERIKSSON<<ANNA<<<\nL898902C36UTO"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Dehyphenate(c.in); got != c.want {
				t.Errorf("Dehyphenate(%q) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}
