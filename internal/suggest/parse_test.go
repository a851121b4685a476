package suggest

import (
	"reflect"
	"testing"

	"github.com/mohammad-safakhou/pagemind/internal/retrieval"
)

var candidates = []retrieval.Match{
	{DocumentID: "p1", Title: "Rocket Design", Score: 0.82},
	{DocumentID: "p2", Title: "Rocket Design Review", Score: 0.75},
	{DocumentID: "p3", Title: "Fuel Chemistry", Score: 0.71},
}

func TestParseLinkSuggestions(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []LinkSuggestion
	}{
		{
			name: "delimited format",
			in:   "[liquid fuel](Fuel Chemistry) - explains propellant choice",
			want: []LinkSuggestion{{LinkText: "liquid fuel", DocumentID: "p3", Context: "explains propellant choice"}},
		},
		{
			name: "first matching candidate wins",
			in:   "See [design notes](Rocket Design) for details.",
			want: []LinkSuggestion{{LinkText: "design notes", DocumentID: "p1", Context: "See  for details."}},
		},
		{
			name: "substring of a title resolves",
			in:   "[review](Review)",
			want: []LinkSuggestion{{LinkText: "review", DocumentID: "p2", Context: ""}},
		},
		{
			name: "case-insensitive fallback",
			in:   "[propellants](fuel CHEMISTRY) - lowercased by the model",
			want: []LinkSuggestion{{LinkText: "propellants", DocumentID: "p3", Context: "lowercased by the model"}},
		},
		{
			name: "unknown target stays unresolved",
			in:   "[engines](Jet Engines) - not a candidate",
			want: []LinkSuggestion{{LinkText: "engines", Context: "not a candidate"}},
		},
		{
			name: "empty target never resolves",
			in:   "[engines]() - empty",
			want: []LinkSuggestion{{LinkText: "engines", Context: "empty"}},
		},
		{
			name: "only first token per line",
			in:   "[a](Rocket Design) and [b](Fuel Chemistry)",
			want: []LinkSuggestion{{LinkText: "a", DocumentID: "p1", Context: "and [b](Fuel Chemistry)"}},
		},
		{
			name: "list markers stripped",
			in:   "1. [a](Fuel Chemistry) - numbered\n- [b](Rocket Design): bulleted\n* [c](Rocket Design)",
			want: []LinkSuggestion{
				{LinkText: "a", DocumentID: "p3", Context: "numbered"},
				{LinkText: "b", DocumentID: "p1", Context: "bulleted"},
				{LinkText: "c", DocumentID: "p1", Context: ""},
			},
		},
		{
			name: "lines without a token are dropped",
			in:   "Here are my suggestions:\n\n[a](Fuel Chemistry)\nThanks!",
			want: []LinkSuggestion{{LinkText: "a", DocumentID: "p3", Context: ""}},
		},
		{
			name: "empty label dropped",
			in:   "[](Rocket Design) - nothing to link",
			want: []LinkSuggestion{},
		},
		{name: "empty input", in: "", want: []LinkSuggestion{}},
		{name: "unbalanced brackets", in: "[oops(Rocket Design)\n[x](y\n]broken[(", want: []LinkSuggestion{}},
		{name: "bare url", in: "https://example.com/rocket", want: []LinkSuggestion{}},
		{
			name: "windows newlines",
			in:   "[a](Fuel Chemistry) - one\r\n[b](Rocket Design) - two\r\n",
			want: []LinkSuggestion{
				{LinkText: "a", DocumentID: "p3", Context: "one"},
				{LinkText: "b", DocumentID: "p1", Context: "two"},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseLinkSuggestions(tc.in, candidates)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %#v\nwant %#v", got, tc.want)
			}
		})
	}
}

func TestParseLinkSuggestionsWithoutCandidates(t *testing.T) {
	got := ParseLinkSuggestions("[a](Rocket Design)", nil)
	if len(got) != 1 || got[0].Usable() {
		t.Fatalf("suggestion without candidates must be unusable: %+v", got)
	}
}

func TestUsable(t *testing.T) {
	if (LinkSuggestion{LinkText: "x"}).Usable() {
		t.Fatalf("unresolved suggestion is not usable")
	}
	if !(LinkSuggestion{LinkText: "x", DocumentID: "p1"}).Usable() {
		t.Fatalf("resolved suggestion is usable")
	}
}

func TestParseTags(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"Rocketry, Liquid Fuel ,propulsion", []string{"rocketry", "liquid fuel", "propulsion"}},
		{"a, ok, x-ray, 2024 plans", []string{"ok", "x-ray", "2024 plans"}},
		{"tags: rocketry, fuel!", nil},
		{"rocketry, rocketry, Rocketry", []string{"rocketry"}},
		{"", nil},
		{"this tag is way too long to be accepted by the filter", nil},
		{"café, naïve", nil},
	}
	for _, tc := range cases {
		got := ParseTags(tc.in)
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("ParseTags(%q) = %#v, want %#v", tc.in, got, tc.want)
		}
	}
}
