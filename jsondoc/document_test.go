package jsondoc

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse_PreservesOrderAndValues(t *testing.T) {
	in := `{"b":1,"a":{"z":[1, 2],"y":null},"c":"x"}`

	doc, err := ParseString(in)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if diff := cmp.Diff([]string{"b", "a", "c"}, doc.Keys()); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
	if got := doc.String(); got != `{"b":1,"a":{"z":[1, 2],"y":null},"c":"x"}` {
		t.Fatalf("unexpected round trip: %s", got)
	}
}

func TestSet_OverwritesInPlaceAndAppends(t *testing.T) {
	doc, err := ParseString(`{"OutcomeType":1,"TouchpointId":"0000000001"}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if err := doc.Set("OutcomeType", 5); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := doc.Set("SessionId", "s-1"); err != nil {
		t.Fatalf("set: %v", err)
	}

	want := `{"OutcomeType":5,"TouchpointId":"0000000001","SessionId":"s-1"}`
	if got := doc.String(); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestSetNull_DistinctFromAbsent(t *testing.T) {
	doc := New()
	doc.SetNull("OutcomeClaimedDate")

	if !doc.Has("OutcomeClaimedDate") {
		t.Fatal("expected null member to be present")
	}
	raw, _ := doc.Raw("OutcomeClaimedDate")
	if string(raw) != "null" {
		t.Fatalf("expected null, got %s", raw)
	}
}

func TestSetIfAbsent(t *testing.T) {
	doc, _ := ParseString(`{"a":1}`)

	added, err := doc.SetIfAbsent("a", 2)
	if err != nil || added {
		t.Fatalf("expected no insert for existing key, added=%v err=%v", added, err)
	}
	added, err = doc.SetIfAbsent("b", 2)
	if err != nil || !added {
		t.Fatalf("expected insert for new key, added=%v err=%v", added, err)
	}
	if got := doc.String(); got != `{"a":1,"b":2}` {
		t.Fatalf("unexpected doc: %s", got)
	}
}

func TestGetAndDelete(t *testing.T) {
	doc, _ := ParseString(`{"a":"x","b":2,"c":true}`)

	var b int
	ok, err := doc.Get("b", &b)
	if err != nil || !ok || b != 2 {
		t.Fatalf("get b: ok=%v err=%v b=%d", ok, err, b)
	}
	ok, err = doc.Get("missing", &b)
	if err != nil || ok {
		t.Fatalf("expected absent member, ok=%v err=%v", ok, err)
	}

	if !doc.Delete("b") || doc.Delete("b") {
		t.Fatal("delete should succeed once")
	}
	if got := doc.String(); got != `{"a":"x","c":true}` {
		t.Fatalf("unexpected doc after delete: %s", got)
	}
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]string{
		"empty":     ``,
		"array":     `[1,2]`,
		"truncated": `{"a":1`,
		"trailing":  `{"a":1}{"b":2}`,
		"bad value": `{"a":tru}`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseString(in); err == nil {
				t.Fatalf("expected error for %q", in)
			}
		})
	}

	if _, err := ParseString(`"str"`); !errors.Is(err, ErrNotObject) {
		t.Fatalf("expected ErrNotObject, got %v", err)
	}
}

func TestMarshal_IsValidJSON(t *testing.T) {
	doc := New()
	_ = doc.Set(`we"ird`, map[string]int{"n": 1})

	var out map[string]any
	if err := json.Unmarshal([]byte(doc.String()), &out); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if _, ok := out[`we"ird`]; !ok {
		t.Fatalf("expected escaped key to survive, got %v", out)
	}
}
