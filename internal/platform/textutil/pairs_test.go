package textutil

import (
	"reflect"
	"testing"
)

func TestParsePairs(t *testing.T) {
	cases := map[string]struct {
		raw  string
		want map[string]string
	}{
		"empty":       {raw: "", want: map[string]string{}},
		"single":      {raw: "apikey=anon", want: map[string]string{"apikey": "anon"}},
		"spacing":     {raw: " apikey = anon , Authorization=Bearer abc ", want: map[string]string{"apikey": "anon", "Authorization": "Bearer abc"}},
		"malformed":   {raw: "broken,=value,name=", want: map[string]string{}},
		"value has =": {raw: "Authorization=Bearer a=b", want: map[string]string{"Authorization": "Bearer a=b"}},
		"last wins":   {raw: "x=1,x=2", want: map[string]string{"x": "2"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := ParsePairs(tc.raw); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ParsePairs(%q) = %#v, want %#v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestNormalizeStringMap(t *testing.T) {
	got := NormalizeStringMap(map[string]string{" apikey ": " anon ", "empty": " ", " ": "ignored"})
	want := map[string]string{"apikey": "anon"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %#v got %#v", want, got)
	}
	if got := NormalizeStringMap(nil); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil map, got %#v", got)
	}
}
