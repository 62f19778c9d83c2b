package pattern

import (
	"github.com/dlclark/regexp2"
	"gitlab.com/tozd/go/errors"
)

// Compiled is a single compiled pattern. Immutable and safe for
// concurrent use once built.
type Compiled struct {
	source string
	re     *regexp2.Regexp
}

func (c *Compiled) Source() string {
	return c.source
}

// Group is one capture group of a match. Offsets are rune offsets into
// the searched line; Present is false when the group did not
// participate in the match.
type Group struct {
	Number  int
	Start   int
	End     int
	Present bool
}

// Match is the result of a successful find. Start/End cover the whole
// match; Groups holds every numbered capture group, index 0 included.
type Match struct {
	Start  int
	End    int
	Groups []Group
}

// FindAt returns the leftmost match of c in line at or after pos, or
// ok=false when the pattern does not match the remainder of the line.
func (c *Compiled) FindAt(line []rune, pos int) (Match, bool, error) {
	m, err := c.re.FindRunesMatchStartingAt(line, pos)
	if err != nil {
		return Match{}, false, errors.Errorf("matching %q: %w", c.source, err)
	}
	if m == nil {
		return Match{}, false, nil
	}

	out := Match{Start: m.Index, End: m.Index + m.Length}
	for i := 0; i < m.GroupCount(); i++ {
		g := m.GroupByNumber(i)
		grp := Group{Number: i}
		if g != nil && len(g.Captures) > 0 {
			grp.Start = g.Index
			grp.End = g.Index + g.Length
			grp.Present = true
		}
		out.Groups = append(out.Groups, grp)
	}
	return out, true, nil
}

// Matcher scans an ordered set of patterns and reports the one
// matching earliest in the line. Ties go to the pattern listed first,
// which is how grammar declaration order becomes match precedence.
type Matcher struct {
	entries []matcherEntry
}

type matcherEntry struct {
	compiled   *Compiled
	allowEmpty bool
}

func NewMatcher() *Matcher {
	return &Matcher{}
}

// Add appends a pattern to the scan order. A nil pattern keeps its
// index slot but never competes. allowEmpty admits zero-width matches;
// when false, a zero-width find is treated as no match, since a match
// that consumes nothing cannot advance a scan.
func (m *Matcher) Add(c *Compiled, allowEmpty bool) {
	m.entries = append(m.entries, matcherEntry{compiled: c, allowEmpty: allowEmpty})
}

// First returns the index of the winning pattern and its match.
// ok=false means no pattern matched at or after pos. Individual
// pattern evaluation errors are skipped; the pattern simply does not
// compete (a rule that cannot be evaluated must never take down the
// scan of unrelated rules).
func (m *Matcher) First(line []rune, pos int) (int, Match, bool) {
	best := -1
	var bestMatch Match
	for i, e := range m.entries {
		if e.compiled == nil {
			continue
		}
		found, ok, err := e.compiled.FindAt(line, pos)
		if err != nil || !ok {
			continue
		}
		if found.End == found.Start && !e.allowEmpty {
			continue
		}
		if best < 0 || found.Start < bestMatch.Start {
			best = i
			bestMatch = found
		}
		if bestMatch.Start == pos {
			break
		}
	}
	if best < 0 {
		return 0, Match{}, false
	}
	return best, bestMatch, true
}
