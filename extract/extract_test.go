package extract

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func TestCells_TableTriples(t *testing.T) {
	// WHAT: Cells returns td text in document order, normalised.
	// WHY: Search results are decoded as (application id, title, certificate id) triples.
	body := `<table><tr><td> 20120001 </td><td>Bottle
	  <b>shape</b></td><td>42</td></tr>
	<tr><td>20120002</td><td>Chair</td><td>43</td></tr></table>`

	cells, err := Cells(strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"20120001", "Bottle shape", "42", "20120002", "Chair", "43"}
	if len(cells) != len(want) {
		t.Fatalf("cells: got %v", cells)
	}
	for i := range want {
		if cells[i] != want[i] {
			t.Errorf("cell %d: got %q, want %q", i, cells[i], want[i])
		}
	}
}

func TestCells_NoTable(t *testing.T) {
	cells, err := Cells(strings.NewReader(`<p>Nothing found</p>`))
	if err != nil {
		t.Fatal(err)
	}
	if len(cells) != 0 {
		t.Fatalf("expected no cells, got %v", cells)
	}
}

func TestText_SkipsScript(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<div>a<script>x()</script><br>b</div>`))
	if err != nil {
		t.Fatal(err)
	}
	if got := Text(doc); got != "a b" {
		t.Fatalf("got %q", got)
	}
}

func TestAttr(t *testing.T) {
	doc, _ := html.Parse(strings.NewReader(`<p style="">x</p>`))
	var p *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "p" {
			p = n
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if p == nil {
		t.Fatal("p not found")
	}
	if !HasAttr(p, "style") || Attr(p, "style") != "" {
		t.Error("empty style attribute should be present")
	}
	if HasAttr(p, "class") {
		t.Error("class should be absent")
	}
}
