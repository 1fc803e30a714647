package specmatch

import (
	"errors"
	"testing"
)

const attrSpec = `dataAttributes:
data-event-id= "join_group"
data-page_name="${page_name}"
data-user_id='$user_id'`

func TestParseAttributes(t *testing.T) {
	spec, err := ParseAttributes(attrSpec)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []string{"data-event-id", "data-page_name", "data-user_id"}
	if len(spec.Names) != len(want) {
		t.Fatalf("names: got %v, want %v", spec.Names, want)
	}
	for i, n := range want {
		if spec.Names[i] != n {
			t.Errorf("names[%d]: got %q, want %q", i, spec.Names[i], n)
		}
	}
	if v := spec.Values["data-event-id"]; v.Placeholder || v.Value != "join_group" {
		t.Errorf("data-event-id: got %+v", v)
	}
	if v := spec.Values["data-page_name"]; !v.Placeholder || v.Value != "page_name" {
		t.Errorf("data-page_name: got %+v, want placeholder", v)
	}
	if v := spec.Values["data-user_id"]; !v.Placeholder || v.Value != "user_id" {
		t.Errorf("data-user_id: got %+v, want placeholder", v)
	}
}

func TestParseAttributes_Errors(t *testing.T) {
	if _, err := ParseAttributes(" "); !errors.Is(err, ErrMissingSpec) {
		t.Errorf("blank: got %v, want ErrMissingSpec", err)
	}
	if _, err := ParseAttributes("dataAttributes: none here"); !errors.Is(err, ErrMalformedSpec) {
		t.Errorf("no pairs: got %v, want ErrMalformedSpec", err)
	}
}

const page = `<!DOCTYPE html>
<html><body>
<nav data-section="top"><a href="/">home</a></nav>
<button class="cta" data-event-id="join_group" data-page_name="landing" data-user_id="42">Join</button>
<img src="x.png" data-lazy="1"/>
</body></html>`

func TestExtractDataAttributes(t *testing.T) {
	els, err := ExtractDataAttributes([]byte(page))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(els) != 3 {
		t.Fatalf("elements: got %d, want 3 (%v)", len(els), els)
	}
	if els[1]["data-event-id"] != "join_group" {
		t.Errorf("button attrs: got %v", els[1])
	}
	if els[2]["data-lazy"] != "1" {
		t.Errorf("self-closing img attrs: got %v", els[2])
	}
}

func TestMatchAttributes(t *testing.T) {
	spec, err := ParseAttributes(attrSpec)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	els, err := ExtractDataAttributes([]byte(page))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	if !(Matcher{}).MatchAttributes(spec, els) {
		t.Error("expected the button to satisfy the spec")
	}
	if !(Matcher{StrictValueMatch: true}).MatchAttributes(spec, els) {
		t.Error("strict: literal event id equal and placeholders free")
	}

	missing := []map[string]string{{"data-event-id": "join_group", "data-page_name": "landing"}}
	if (Matcher{}).MatchAttributes(spec, missing) {
		t.Error("expected no match when data-user_id is absent")
	}

	wrong := []map[string]string{{"data-event-id": "leave_group", "data-page_name": "p", "data-user_id": "1"}}
	if !(Matcher{}).MatchAttributes(spec, wrong) {
		t.Error("loose: values are not compared")
	}
	if (Matcher{StrictValueMatch: true}).MatchAttributes(spec, wrong) {
		t.Error("strict: event id differs")
	}
}
