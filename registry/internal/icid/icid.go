// Package icid enumerates the international industrial-design classification
// codes ("CC-SS") that partition the search service's index.
//
// Codes come either from a table file listing the known subclasses of each
// class, or, when the table is absent and the operator agrees, from a
// bruteforce sweep of every class and subclass the scheme allows.
package icid

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"slices"
	"strconv"
)

const (
	// MaxClass is the highest class of the classification.
	MaxClass = 32
	// MaxSubclass is the highest ordinary subclass.
	MaxSubclass = 18
	// Miscellaneous is the reserved "other" subclass present in most classes.
	Miscellaneous = 99
)

// ErrDeclined is returned by Load when the table is missing and the operator
// refuses the bruteforce sweep.
var ErrDeclined = errors.New("icid: bruteforce enumeration declined")

// Code is a classification code.
type Code struct {
	Class    int
	Subclass int
}

// String renders the code as the service expects it: "CC-SS".
func (c Code) String() string {
	return fmt.Sprintf("%02d-%02d", c.Class, c.Subclass)
}

// Codes is a finite lazy sequence of codes with its exact length known up front.
type Codes struct {
	Total int
	Seq   iter.Seq[Code]
}

// Collect drains the sequence. Mostly useful in tests.
func (c Codes) Collect() []Code {
	return slices.Collect(c.Seq)
}

// Confirmer asks the operator a yes/no question.
type Confirmer func(question string) bool

// table is the on-disk layout: {"classes": {"01": ["01", "02", ...], ...}}.
type table struct {
	Classes map[string][]string `json:"classes"`
}

// FromTable reads a code table. Classes are visited in ascending order,
// subclasses in file order.
func FromTable(path string) (Codes, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Codes{}, fmt.Errorf("icid: read table: %w", err)
	}
	var t table
	if err := json.Unmarshal(data, &t); err != nil {
		return Codes{}, fmt.Errorf("icid: decode table %s: %w", path, err)
	}
	if len(t.Classes) == 0 {
		return Codes{}, fmt.Errorf("icid: table %s lists no classes", path)
	}

	type class struct {
		n    int
		subs []int
	}
	classes := make([]class, 0, len(t.Classes))
	total := 0
	for key, subKeys := range t.Classes {
		n, err := parsePart(key, 1, MaxClass)
		if err != nil {
			return Codes{}, fmt.Errorf("icid: class %q: %w", key, err)
		}
		c := class{n: n, subs: make([]int, 0, len(subKeys))}
		for _, sk := range subKeys {
			s, err := parsePart(sk, 0, Miscellaneous)
			if err != nil {
				return Codes{}, fmt.Errorf("icid: subclass %q of class %q: %w", sk, key, err)
			}
			c.subs = append(c.subs, s)
		}
		total += len(c.subs)
		classes = append(classes, c)
	}
	slices.SortFunc(classes, func(a, b class) int { return cmp.Compare(a.n, b.n) })

	return Codes{
		Total: total,
		Seq: func(yield func(Code) bool) {
			for _, c := range classes {
				for _, s := range c.subs {
					if !yield(Code{Class: c.n, Subclass: s}) {
						return
					}
				}
			}
		},
	}, nil
}

// Bruteforce enumerates classes 1..32, each with subclasses 00..18 then 99.
func Bruteforce() Codes {
	return Codes{
		Total: MaxClass * (MaxSubclass + 2),
		Seq: func(yield func(Code) bool) {
			for c := 1; c <= MaxClass; c++ {
				for s := 0; s <= MaxSubclass; s++ {
					if !yield(Code{Class: c, Subclass: s}) {
						return
					}
				}
				if !yield(Code{Class: c, Subclass: Miscellaneous}) {
					return
				}
			}
		},
	}
}

// Load uses the table at path when it exists. Otherwise it asks confirm
// whether to bruteforce; a nil confirm or a refusal yields ErrDeclined.
func Load(path string, confirm Confirmer) (Codes, error) {
	codes, err := FromTable(path)
	if err == nil {
		return codes, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return Codes{}, err
	}
	q := fmt.Sprintf("There is no %s present, do you want to generate classification codes by bruteforce?", path)
	if confirm == nil || !confirm(q) {
		return Codes{}, fmt.Errorf("%w (no table at %s)", ErrDeclined, path)
	}
	return Bruteforce(), nil
}

func parsePart(s string, lo, hi int) (int, error) {
	if len(s) != 2 {
		return 0, fmt.Errorf("want two digits")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("not a number")
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("out of range %d..%d", lo, hi)
	}
	return n, nil
}
