package spectra

// Set is an ordered name-to-template mapping. Insertion order defines the
// column order of the design matrix and the order of reported coefficients.
type Set struct {
	names  []string
	byName map[string]*Template
}

// NewSet creates an empty template set.
func NewSet(templates ...*Template) *Set {
	s := &Set{byName: make(map[string]*Template)}
	for _, t := range templates {
		s.Add(t)
	}
	return s
}

// Add inserts a template, keyed by its name. Re-adding an existing name
// replaces the template but keeps its original position.
func (s *Set) Add(t *Template) {
	if _, ok := s.byName[t.Name]; !ok {
		s.names = append(s.names, t.Name)
	}
	s.byName[t.Name] = t
}

// Get returns the template with the given name.
func (s *Set) Get(name string) (*Template, bool) {
	t, ok := s.byName[name]
	return t, ok
}

// At returns the i-th template in insertion order.
func (s *Set) At(i int) *Template {
	return s.byName[s.names[i]]
}

// Names returns the template names in insertion order.
func (s *Set) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Len returns the number of templates.
func (s *Set) Len() int {
	return len(s.names)
}

// NumLines returns the number of emission-line templates in the set.
func (s *Set) NumLines() int {
	n := 0
	for _, name := range s.names {
		if s.byName[name].IsLine() {
			n++
		}
	}
	return n
}
