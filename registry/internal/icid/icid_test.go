package icid

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeTable(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ICID codes.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBruteforce_TotalMatchesSequence(t *testing.T) {
	// WHAT: The announced total equals the number of yielded codes.
	// WHY: Progress reporting relies on the total known before the sweep.
	codes := Bruteforce()
	all := codes.Collect()
	if codes.Total != 640 || len(all) != 640 {
		t.Fatalf("total=%d len=%d, want 640", codes.Total, len(all))
	}
	if all[0].String() != "01-00" {
		t.Errorf("first: %s", all[0])
	}
	if all[19].String() != "01-99" || all[20].String() != "02-00" {
		t.Errorf("class boundary: %s %s", all[19], all[20])
	}
	if all[639].String() != "32-99" {
		t.Errorf("last: %s", all[639])
	}
}

func TestBruteforce_EarlyStop(t *testing.T) {
	n := 0
	for range Bruteforce().Seq {
		n++
		if n == 5 {
			break
		}
	}
	if n != 5 {
		t.Fatalf("n = %d", n)
	}
}

func TestFromTable_AscendingClasses(t *testing.T) {
	// WHAT: Classes are iterated ascending regardless of file order; subclasses keep file order.
	path := writeTable(t, `{"classes": {"02": ["99", "01"], "01": ["01"]}}`)
	codes, err := FromTable(path)
	if err != nil {
		t.Fatal(err)
	}
	got := codes.Collect()
	want := []string{"01-01", "02-99", "02-01"}
	if codes.Total != 3 || len(got) != 3 {
		t.Fatalf("total=%d got=%v", codes.Total, got)
	}
	for i := range want {
		if got[i].String() != want[i] {
			t.Errorf("code %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestFromTable_Malformed(t *testing.T) {
	for _, content := range []string{
		`{"classes": {"1": ["01"]}}`,
		`{"classes": {"33": ["01"]}}`,
		`{"classes": {"01": ["ab"]}}`,
		`{"classes": {}}`,
		`not json`,
	} {
		if _, err := FromTable(writeTable(t, content)); err == nil {
			t.Errorf("%s: expected error", content)
		}
	}
}

func TestLoad_MissingTable(t *testing.T) {
	// WHAT: A missing table asks for confirmation; refusal is ErrDeclined.
	missing := filepath.Join(t.TempDir(), "absent.json")

	var asked string
	codes, err := Load(missing, func(q string) bool { asked = q; return true })
	if err != nil {
		t.Fatal(err)
	}
	if asked == "" || codes.Total != 640 {
		t.Fatalf("asked=%q total=%d", asked, codes.Total)
	}

	_, err = Load(missing, func(string) bool { return false })
	if !errors.Is(err, ErrDeclined) {
		t.Fatalf("err = %v, want ErrDeclined", err)
	}
	if _, err := Load(missing, nil); !errors.Is(err, ErrDeclined) {
		t.Fatalf("nil confirm: err = %v", err)
	}
}

func TestLoad_PresentTableNoPrompt(t *testing.T) {
	path := writeTable(t, `{"classes": {"05": ["01", "02"]}}`)
	codes, err := Load(path, func(string) bool {
		t.Fatal("must not ask when the table exists")
		return false
	})
	if err != nil {
		t.Fatal(err)
	}
	if codes.Total != 2 {
		t.Fatalf("total=%d", codes.Total)
	}
}
