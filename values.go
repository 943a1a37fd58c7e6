package mi

import "unicode"

// ValuesMap maps a key to an ordered list of values. It backs request and response
// headers as well as query parameters.
//
// When CaseHandling is set, keys are rewritten to Header-Case before every lookup and
// insert, so "content-type" and "Content-Type" address the same entry. Incoming request
// headers enable it; response headers and query parameters do not.
type ValuesMap struct {
	CaseHandling bool

	values map[string][]string
	order  []string
}

func NewValuesMap(caseHandling bool) *ValuesMap {
	return &ValuesMap{
		CaseHandling: caseHandling,
		values:       make(map[string][]string),
	}
}

// Get returns the most recently added value for the key.
func (m *ValuesMap) Get(key string) (string, bool) {
	values := m.values[m.key(key)]
	if len(values) == 0 {
		return "", false
	}

	return values[len(values)-1], true
}

// Value is Get without the presence flag.
func (m *ValuesMap) Value(key string) string {
	value, _ := m.Get(key)
	return value
}

// GetAll returns every value stored under the key in insertion order. The returned
// slice is a copy.
func (m *ValuesMap) GetAll(key string) ([]string, bool) {
	values, found := m.values[m.key(key)]
	if !found {
		return nil, false
	}

	return append([]string(nil), values...), true
}

// Set replaces all values of the key.
func (m *ValuesMap) Set(key, value string) {
	key = m.key(key)
	if _, found := m.values[key]; !found {
		m.order = append(m.order, key)
	}

	m.values[key] = []string{value}
}

// Add appends the value, creating the key if absent.
func (m *ValuesMap) Add(key, value string) {
	key = m.key(key)
	values, found := m.values[key]
	if !found {
		m.order = append(m.order, key)
	}

	m.values[key] = append(values, value)
}

func (m *ValuesMap) Has(key string) bool {
	_, found := m.values[m.key(key)]
	return found
}

func (m *ValuesMap) Del(key string) {
	key = m.key(key)
	if _, found := m.values[key]; !found {
		return
	}

	delete(m.values, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Keys returns the stored keys in the order they were first inserted.
func (m *ValuesMap) Keys() []string {
	return append([]string(nil), m.order...)
}

// All returns a snapshot of the whole map.
func (m *ValuesMap) All() map[string][]string {
	all := make(map[string][]string, len(m.values))
	for key, values := range m.values {
		all[key] = append([]string(nil), values...)
	}

	return all
}

// Len returns the number of distinct keys.
func (m *ValuesMap) Len() int {
	return len(m.values)
}

func (m *ValuesMap) IsEmpty() bool {
	return len(m.values) == 0
}

func (m *ValuesMap) key(key string) string {
	if !m.CaseHandling {
		return key
	}

	return HeaderCase(key)
}

// HeaderCase upper-cases the first rune of the key and every rune following a dash and
// lower-cases the rest: "content-TYPE" becomes "Content-Type".
func HeaderCase(key string) string {
	if isHeaderCase(key) {
		return key
	}

	buf := make([]rune, 0, len(key))
	up := true
	for _, r := range key {
		if up {
			r = unicode.ToUpper(r)
		} else {
			r = unicode.ToLower(r)
		}

		up = r == '-'
		buf = append(buf, r)
	}

	return string(buf)
}

func isHeaderCase(key string) bool {
	up := true
	for _, r := range key {
		if up && unicode.ToUpper(r) != r || !up && unicode.ToLower(r) != r {
			return false
		}

		up = r == '-'
	}

	return true
}
