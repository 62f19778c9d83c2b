package registry

import "sync"

// LanguageID is a small numeric identifier for a language name,
// assigned on first encounter and stable for the life of the table.
type LanguageID int

const (
	LanguageNone      LanguageID = 0
	LanguagePlainText LanguageID = 1
)

// LanguageTable assigns monotonically increasing LanguageIDs to
// language names. Safe for concurrent use.
type LanguageTable struct {
	mu     sync.RWMutex
	byName map[string]LanguageID
	next   LanguageID
}

func NewLanguageTable() *LanguageTable {
	return &LanguageTable{
		byName: map[string]LanguageID{"plaintext": LanguagePlainText},
		next:   LanguagePlainText + 1,
	}
}

// Declare returns the ID for name, assigning the next free ID on first
// encounter.
func (t *LanguageTable) Declare(name string) LanguageID {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.byName[name]; ok {
		return id
	}
	id := t.next
	t.next++
	t.byName[name] = id
	return id
}

// Lookup resolves a name without assigning. ok=false is the normal
// outcome for language names no installed package declared;
// unresolvable embedded-language entries are dropped on this result,
// not errored.
func (t *LanguageTable) Lookup(name string) (LanguageID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.byName[name]
	return id, ok
}
