package dedup

import (
	"log/slog"
	"sort"
	"sync"
)

// Person is a canonical identity with every alias and role seen for it.
type Person struct {
	Name    string   `json:"name"`
	Aliases []string `json:"aliases"`
	Roles   []string `json:"roles"`
}

// Directory accumulates canonical persons during a pass. Each observed
// raw name is resolved against the names already in the directory, so an
// alias maps to exactly one Person and roles only ever grow.
type Directory struct {
	resolver *Resolver

	mu     sync.Mutex
	people map[string]*Person
}

// NewDirectory creates a Directory backed by r.
func NewDirectory(r *Resolver) *Directory {
	if r == nil {
		r = NewResolver()
	}
	return &Directory{resolver: r, people: make(map[string]*Person)}
}

// Resolver returns the underlying resolver.
func (d *Directory) Resolver() *Resolver { return d.resolver }

// Observe records a sighting of raw with the given roles plus any role
// implied by its honorific, and returns a copy of the canonical Person.
func (d *Directory) Observe(raw string, roles ...string) Person {
	d.mu.Lock()
	defer d.mu.Unlock()

	m := d.resolver.ResolveMatch(raw, d.namesLocked())
	p, ok := d.people[m.Canonical]
	if !ok {
		p = &Person{Name: m.Canonical}
		d.people[m.Canonical] = p
		slog.Debug("dedup: new person", "name", m.Canonical, "raw", raw)
	} else if m.Step == StepFuzzy || m.Step == StepInitial {
		slog.Debug("dedup: merged alias", "raw", raw, "canonical", m.Canonical,
			"step", m.Step, "confidence", m.Confidence)
	}

	p.Aliases = appendUnique(p.Aliases, raw)
	p.Roles = MergeRoles(p.Roles, append(RolesFromTitle(raw), roles...))
	return clonePerson(p)
}

// Lookup returns the canonical Person for a name already observed.
func (d *Directory) Lookup(name string) (Person, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.people[name]
	if !ok {
		return Person{}, false
	}
	return clonePerson(p), true
}

// Names returns canonical names in sorted order.
func (d *Directory) Names() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.namesLocked()
}

// People returns every canonical Person sorted by name.
func (d *Directory) People() []Person {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Person, 0, len(d.people))
	for _, name := range d.namesLocked() {
		out = append(out, clonePerson(d.people[name]))
	}
	return out
}

func (d *Directory) namesLocked() []string {
	names := make([]string, 0, len(d.people))
	for n := range d.people {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

func clonePerson(p *Person) Person {
	return Person{
		Name:    p.Name,
		Aliases: append([]string(nil), p.Aliases...),
		Roles:   append([]string(nil), p.Roles...),
	}
}
