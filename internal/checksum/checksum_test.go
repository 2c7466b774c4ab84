package checksum

import "testing"

func TestSumStable(t *testing.T) {
	a := Sum([]byte("title: Hi\n"))
	b := Sum([]byte("title: Hi\n"))
	if a != b {
		t.Fatalf("digest not stable: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("len = %d, want 64", len(a))
	}
}

func TestMatches(t *testing.T) {
	data := []byte("body")
	sum := Sum(data)

	cases := []struct {
		expected string
		want     bool
	}{
		{"", true},
		{sum, true},
		{`"` + sum + `"`, true},
		{"deadbeef", false},
	}
	for _, c := range cases {
		if got := Matches(data, c.expected); got != c.want {
			t.Errorf("Matches(%q) = %v, want %v", c.expected, got, c.want)
		}
	}
}
