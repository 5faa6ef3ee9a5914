package language

import "testing"

func TestDetect(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		in   string
		want Lang
	}{
		{"empty", "", English},
		{"latin only", "hello world", English},
		{"thai only", "สวัสดีครับ", Thai},
		{"digits and punctuation", "12345 !!", English},
		{"thai dominant mix", "สรุปเอกสาร invoice ให้หน่อย", Thai},
		{"latin dominant mix", "please summarize เอกสาร for the quarterly report", English},
		{"tie goes to thai", "กข ab", Thai},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Detect(tc.in); got != tc.want {
				t.Fatalf("Detect(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestDirective(t *testing.T) {
	t.Parallel()
	if got := Thai.Directive(); got != "Write in Thai." {
		t.Fatalf("Thai.Directive() = %q", got)
	}
	if got := English.Directive(); got != "Write in English." {
		t.Fatalf("English.Directive() = %q", got)
	}
}
