// Package words provides the category word sets a round deals from.
package words

import (
	"bufio"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// DefaultSet names the embedded word list.
const DefaultSet = "default"

// CustomSet names a word list supplied by the players.
const CustomSet = "custom"

// Limits on player supplied word lists.
const (
	MinCustomWords = 25
	MaxCustomWords = 10000
)

var (
	ErrTooFewWords  = fmt.Errorf("need at least %d words", MinCustomWords)
	ErrTooManyWords = errors.New("too many words in the set")
)

//go:embed default.txt
var embeddedDefault string

var defaultWords = mustParse(embeddedDefault)

func mustParse(text string) []string {
	var out []string
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	out, err := Normalize(out)
	if err != nil {
		panic(fmt.Sprintf("embedded word list: %v", err))
	}
	return out
}

// Default returns a copy of the embedded list, sorted and upper case.
func Default() []string {
	return append([]string(nil), defaultWords...)
}

// Lookup returns the named built-in word set.
func Lookup(name string) ([]string, bool) {
	switch name {
	case "", DefaultSet:
		return Default(), true
	}
	return nil, false
}

// Normalize trims, upper-cases, de-duplicates and sorts a word list and
// checks it against the custom list limits.
func Normalize(in []string) ([]string, error) {
	cleaned := lo.FilterMap(in, func(w string, _ int) (string, bool) {
		w = strings.ToUpper(strings.TrimSpace(w))
		return w, w != ""
	})
	out := lo.Uniq(cleaned)
	if len(out) < MinCustomWords {
		return nil, ErrTooFewWords
	}
	if len(out) > MaxCustomWords {
		return nil, ErrTooManyWords
	}
	sort.Strings(out)
	return out, nil
}
