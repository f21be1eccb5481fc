package text

import "testing"

func TestPersonify(t *testing.T) {
	ctx := Context{
		"people": Context{"name": "ada"},
		"res":    map[string]any{"wood": map[string]any{"count": 3}},
	}

	cases := []struct {
		template string
		want     string
	}{
		{"@people.name goes to sleep.", "Ada goes to sleep."},
		{"the storage holds @res.wood.count logs", "The storage holds 3 logs"},
		{"@missing.path stays", "@missing.path stays"},
		{"@people.name.first is too deep", "@people.name.first is too deep"},
		{"", ""},
		{"élan of @people.name", "Élan of ada"},
	}
	for _, tc := range cases {
		if got := Personify(tc.template, ctx); got != tc.want {
			t.Errorf("Personify(%q) = %q, want %q", tc.template, got, tc.want)
		}
	}
}
