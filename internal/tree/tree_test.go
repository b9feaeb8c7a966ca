package tree

import "testing"

const sampleXML = `<?xml version="1.0" encoding="UTF-8"?>
<root>
  <idno type="halId">hal-0001</idno>
  <idno type="halUri">https://hal.science/hal-0001</idno>
  <title xml:lang="en">A Title</title>
  <plain>just text</plain>
  <nested><deeper><leaf>x</leaf></deeper></nested>
</root>`

func TestDecodeXML(t *testing.T) {
	doc, err := DecodeXML([]byte(sampleXML))
	if err != nil {
		t.Fatalf("DecodeXML: %v", err)
	}

	idnos, ok := Lookup(doc, "root", "idno")
	if !ok {
		t.Fatal("expected root/idno")
	}
	if got := len(Items(idnos)); got != 2 {
		t.Fatalf("expected 2 idno entries, got %d", got)
	}

	uri, ok := FindByAttr(idnos, "type", "halUri")
	if !ok {
		t.Fatal("expected halUri idno")
	}
	if text, _ := Text(uri); text != "https://hal.science/hal-0001" {
		t.Errorf("halUri text = %q", text)
	}

	if s, ok := String(doc, "root", "plain"); !ok || s != "just text" {
		t.Errorf("plain = %q, %v", s, ok)
	}
	if s, ok := String(doc, "root", "title"); !ok || s != "A Title" {
		t.Errorf("title = %q, %v", s, ok)
	}
	if s, ok := String(doc, "root", "nested", "deeper", "leaf"); !ok || s != "x" {
		t.Errorf("leaf = %q, %v", s, ok)
	}
}

func TestDecodeXML_Malformed(t *testing.T) {
	if _, err := DecodeXML([]byte("<root><unclosed></root>")); err == nil {
		t.Error("expected error for malformed XML")
	}
}

func TestLookup_Missing(t *testing.T) {
	doc := Map{
		"a": Map{"b": "leaf"},
		"n": nil,
	}

	tests := []struct {
		name string
		path []string
	}{
		{name: "missing first key", path: []string{"x"}},
		{name: "missing nested key", path: []string{"a", "x"}},
		{name: "walk past a leaf", path: []string{"a", "b", "c"}},
		{name: "null value", path: []string{"n"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if v, ok := Lookup(doc, tt.path...); ok {
				t.Errorf("Lookup(%v) = %v, want not found", tt.path, v)
			}
		})
	}

	if v, ok := Lookup(doc); !ok || v == nil {
		t.Error("empty path should return the node itself")
	}
}

func TestItems(t *testing.T) {
	if got := Items(nil); len(got) != 0 {
		t.Errorf("Items(nil) = %v", got)
	}
	if got := Items("one"); len(got) != 1 {
		t.Errorf("Items(scalar) = %v", got)
	}
	if got := Items([]any{"a", "b"}); len(got) != 2 {
		t.Errorf("Items(list) = %v", got)
	}
}

func TestInt(t *testing.T) {
	tests := []struct {
		in     Node
		want   int
		wantOK bool
	}{
		{in: float64(2021), want: 2021, wantOK: true},
		{in: "2020", want: 2020, wantOK: true},
		{in: " 1999 ", want: 1999, wantOK: true},
		{in: Map{TextKey: "2018"}, want: 2018, wantOK: true},
		{in: "20xx", wantOK: false},
		{in: float64(20.5), wantOK: false},
		{in: nil, wantOK: false},
	}
	for _, tt := range tests {
		got, ok := Int(tt.in)
		if ok != tt.wantOK || (ok && got != tt.want) {
			t.Errorf("Int(%v) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestFindKey(t *testing.T) {
	doc, err := DecodeXML([]byte(`<response><status>ok</status><data><apiSession>tok-1</apiSession></data></response>`))
	if err != nil {
		t.Fatalf("DecodeXML: %v", err)
	}
	v, ok := FindKey(doc, "apiSession")
	if !ok {
		t.Fatal("expected apiSession")
	}
	if s, _ := Text(v); s != "tok-1" {
		t.Errorf("apiSession = %q", s)
	}
	if _, ok := FindKey(doc, "missing"); ok {
		t.Error("expected missing key to be absent")
	}
}

func TestDecodeJSON(t *testing.T) {
	doc, err := DecodeJSON([]byte(`{"meta":{"next_cursor":"abc"},"results":[{"id":"x"},{"id":"y"}]}`))
	if err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if s, ok := String(doc, "meta", "next_cursor"); !ok || s != "abc" {
		t.Errorf("next_cursor = %q, %v", s, ok)
	}
	results, _ := Lookup(doc, "results")
	if len(Items(results)) != 2 {
		t.Errorf("expected 2 results")
	}
}
