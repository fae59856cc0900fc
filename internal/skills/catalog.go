package skills

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateSkill is returned when a skill ID is registered twice.
	ErrDuplicateSkill = errors.New("skill already registered")

	// ErrUnknownSkill is returned for lookups of unregistered IDs.
	ErrUnknownSkill = errors.New("unknown skill")

	// ErrInvalidCatalog is returned by Validate.
	ErrInvalidCatalog = errors.New("invalid skill catalog")
)

type entry struct {
	skill  Skill
	runner Runner
}

// Catalog is the set of registered skills. Register during startup only;
// after that a Catalog is read-only and safe for concurrent use.
type Catalog struct {
	phases  []ID
	entries map[ID]entry
	order   []ID
}

// NewCatalog creates an empty catalog with the given nominal phase order.
// The phase list is the fallback for skills that declare no successor.
func NewCatalog(phases []ID) *Catalog {
	return &Catalog{
		phases:  append([]ID(nil), phases...),
		entries: make(map[ID]entry),
	}
}

// Register adds a skill and its runner.
func (c *Catalog) Register(s Skill, r Runner) error {
	if s.ID == None {
		return fmt.Errorf("skill id is required")
	}
	if _, exists := c.entries[s.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSkill, s.ID)
	}
	if r == nil {
		return fmt.Errorf("skill %s: runner is required", s.ID)
	}
	s.TriggerPhrases = append([]string(nil), s.TriggerPhrases...)
	s.Prerequisites = append([]ID(nil), s.Prerequisites...)
	c.entries[s.ID] = entry{skill: s, runner: r}
	c.order = append(c.order, s.ID)
	return nil
}

// MustRegister is like Register but panics on error.
func (c *Catalog) MustRegister(s Skill, r Runner) {
	if err := c.Register(s, r); err != nil {
		panic(err)
	}
}

// Get returns the skill registered under id.
func (c *Catalog) Get(id ID) (Skill, bool) {
	e, ok := c.entries[id]
	return e.skill, ok
}

// Runner returns the runner registered under id.
func (c *Catalog) Runner(id ID) (Runner, bool) {
	e, ok := c.entries[id]
	return e.runner, ok
}

// Has reports whether id is registered.
func (c *Catalog) Has(id ID) bool {
	_, ok := c.entries[id]
	return ok
}

// List returns all skills in registration order.
func (c *Catalog) List() []Skill {
	out := make([]Skill, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.entries[id].skill)
	}
	return out
}

// Len returns the number of registered skills.
func (c *Catalog) Len() int {
	return len(c.order)
}

// Phases returns the nominal phase order.
func (c *Catalog) Phases() []ID {
	return append([]ID(nil), c.phases...)
}

// NextInLinearOrder returns the skill that follows id: its declared
// successor if any, else the next nominal phase. It returns None at the
// end of the pipeline or for an id in neither.
func (c *Catalog) NextInLinearOrder(id ID) ID {
	if s, ok := c.Get(id); ok && s.SuggestedNext != None {
		return s.SuggestedNext
	}
	for i, p := range c.phases {
		if p == id && i+1 < len(c.phases) {
			return c.phases[i+1]
		}
	}
	return None
}

// MatchTrigger returns the first skill, in registration order, with a
// trigger phrase contained in message.
func (c *Catalog) MatchTrigger(message string) (Skill, bool) {
	msg := strings.ToLower(message)
	for _, id := range c.order {
		s := c.entries[id].skill
		for _, phrase := range s.TriggerPhrases {
			p := strings.ToLower(strings.TrimSpace(phrase))
			if p != "" && strings.Contains(msg, p) {
				return s, true
			}
		}
	}
	return Skill{}, false
}

// MissingPrerequisites returns the prerequisites of id for which done
// reports false.
func (c *Catalog) MissingPrerequisites(id ID, done func(ID) bool) []ID {
	s, ok := c.Get(id)
	if !ok {
		return nil
	}
	var missing []ID
	for _, p := range s.Prerequisites {
		if !done(p) {
			missing = append(missing, p)
		}
	}
	return missing
}

// Validate checks cross references: every successor, prerequisite and
// nominal phase must be registered.
func (c *Catalog) Validate() error {
	var problems []string
	for _, id := range c.order {
		s := c.entries[id].skill
		if s.SuggestedNext != None && !c.Has(s.SuggestedNext) {
			problems = append(problems, fmt.Sprintf("%s: suggested_next %q is not registered", id, s.SuggestedNext))
		}
		for _, p := range s.Prerequisites {
			if !c.Has(p) {
				problems = append(problems, fmt.Sprintf("%s: prerequisite %q is not registered", id, p))
			}
		}
	}
	for _, p := range c.phases {
		if !c.Has(p) {
			problems = append(problems, fmt.Sprintf("nominal phase %q is not registered", p))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidCatalog, strings.Join(problems, "; "))
	}
	return nil
}
