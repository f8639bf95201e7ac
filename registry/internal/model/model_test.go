package model

import (
	"testing"
)

func TestExpandLocale(t *testing.T) {
	cases := []struct {
		in   string
		want []string
		err  bool
	}{
		{"", []string{"en"}, false},
		{"RU ", []string{"ru"}, false},
		{"all", []string{"en", "ru", "hy"}, false},
		{"fr", nil, true},
	}
	for _, c := range cases {
		got, err := ExpandLocale(c.in)
		if (err != nil) != c.err {
			t.Errorf("%q: err = %v", c.in, err)
			continue
		}
		if len(got) != len(c.want) {
			t.Errorf("%q: got %v, want %v", c.in, got, c.want)
			continue
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Errorf("%q: got %v, want %v", c.in, got, c.want)
			}
		}
	}
}

func TestRecordLink(t *testing.T) {
	got := RecordLink("https://old.aipa.am/", 42, "hy")
	want := "https://old.aipa.am/search_mods/industrial_design/view_item.php?id=42&language=hy"
	if got != want {
		t.Fatalf("got %q", got)
	}
}

func TestSnapshotPool(t *testing.T) {
	s := Snapshot{Entries: 3, Groups: []Group{
		{Code: "01-01", Data: []Record{{CertificateID: 2}, {CertificateID: 1}}},
		{Code: "02-99", Data: []Record{{CertificateID: 2}}},
	}}
	pool := s.Pool()
	if len(pool) != 3 || pool[0].CertificateID != 2 || pool[2].CertificateID != 2 {
		t.Fatalf("pool: %+v", pool)
	}
}

func TestSequenceLast(t *testing.T) {
	s := Sequence{Records: []Record{{CertificateID: 1}, {CertificateID: 2}}, Gaps: []int{3}}
	if s.Last() != 3 {
		t.Fatalf("last: %d", s.Last())
	}
	if (&Sequence{}).Last() != 0 {
		t.Fatal("empty sequence last should be 0")
	}
}
