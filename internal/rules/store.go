package rules

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/user/hsafe/internal/model"
	"github.com/user/hsafe/internal/storage"
	"github.com/user/hsafe/internal/util"
)

// Persister is the key-value store the rule list is saved into.
type Persister interface {
	LoadJSON(key string, dst interface{}) (bool, error)
	SaveJSON(key string, v interface{}) error
}

// Store is the ordered rule list. Index in the list is the rule's priority.
type Store struct {
	mu    sync.RWMutex
	rules []model.Rule
	kv    Persister
	key   string
}

// NewStore creates an empty store persisted under storage.KeyRules.
// A nil persister keeps the rules in memory only.
func NewStore(kv Persister) *Store {
	return &Store{kv: kv, key: storage.KeyRules}
}

// NewMemoryStore creates an unpersisted store holding rules in the given order.
func NewMemoryStore(rules []model.Rule) *Store {
	s := &Store{key: storage.KeyRules}
	s.rules = cloneRules(rules)
	renumber(s.rules)
	return s
}

// Load reads the persisted list. A missing or unreadable value leaves the
// store empty; read errors are logged, not returned.
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rules = nil
	if s.kv == nil {
		return
	}

	var loaded []model.Rule
	ok, err := s.kv.LoadJSON(s.key, &loaded)
	if err != nil {
		util.Warn("Failed to load rules, starting empty: %v", err)
		return
	}
	if !ok {
		return
	}
	s.rules = loaded
	renumber(s.rules)
	util.Debug("Loaded %d rules", len(s.rules))
}

// List returns a copy of all rules in priority order.
func (s *Store) List() []model.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRules(s.rules)
}

// Enabled returns only the enabled rules, in priority order.
func (s *Store) Enabled() []model.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Rule
	for _, r := range s.rules {
		if r.Enabled {
			out = append(out, cloneRule(r))
		}
	}
	return out
}

// Len returns the number of rules.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}

// Get returns the rule with the given id.
func (s *Store) Get(id string) (model.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return model.Rule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	return cloneRule(s.rules[i]), nil
}

// Create validates the input and stores a new rule. The rule is appended
// unless the input carries a position inside the current list.
func (s *Store) Create(in RuleInput) (model.Rule, error) {
	r, err := in.Validate()
	if err != nil {
		return model.Rule{}, err
	}
	r.ID = uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	if in.Position != nil && *in.Position >= 0 && *in.Position < len(s.rules) {
		pos := *in.Position
		s.rules = append(s.rules, model.Rule{})
		copy(s.rules[pos+1:], s.rules[pos:])
		s.rules[pos] = r
	} else {
		s.rules = append(s.rules, r)
	}
	renumber(s.rules)

	created := cloneRule(s.rules[s.indexOf(r.ID)])
	return created, s.save()
}

// Update replaces the editable fields of a rule, keeping its id and place.
// Enabled is kept unless the input sets it.
func (s *Store) Update(id string, in RuleInput) (model.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return model.Rule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}

	r, err := in.Validate()
	if err != nil {
		return model.Rule{}, err
	}
	r.ID = id
	r.Position = i
	if in.Enabled == nil {
		r.Enabled = s.rules[i].Enabled
	}
	s.rules[i] = r

	return cloneRule(r), s.save()
}

// Delete removes a rule.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	s.rules = append(s.rules[:i], s.rules[i+1:]...)
	renumber(s.rules)
	return s.save()
}

// Toggle flips a rule's enabled flag.
func (s *Store) Toggle(id string) (model.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return model.Rule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	s.rules[i].Enabled = !s.rules[i].Enabled
	return cloneRule(s.rules[i]), s.save()
}

// SetEnabled sets a rule's enabled flag.
func (s *Store) SetEnabled(id string, enabled bool) (model.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return model.Rule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	s.rules[i].Enabled = enabled
	return cloneRule(s.rules[i]), s.save()
}

// Move moves the rule at index from to index to. Indices are clamped.
func (s *Store) Move(from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.rules) == 0 {
		return nil
	}
	s.rules = MoveElement(s.rules, from, to)
	renumber(s.rules)
	return s.save()
}

// MoveByID moves a rule to the given position. Repeating the call is a no-op.
func (s *Store) MoveByID(id string, position int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	s.rules = MoveElement(s.rules, i, position)
	renumber(s.rules)
	return s.save()
}

// Replace swaps the whole list, e.g. after an import. The new rules are
// validated first; on error the current list is left untouched.
func (s *Store) Replace(rules []model.Rule) error {
	clean, err := Sanitize(rules)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.rules = clean
	return s.save()
}

func (s *Store) indexOf(id string) int {
	for i := range s.rules {
		if s.rules[i].ID == id {
			return i
		}
	}
	return -1
}

// save writes the list through. Failures are logged and returned; the
// in-memory mutation is kept either way.
func (s *Store) save() error {
	if s.kv == nil {
		return nil
	}
	if err := s.kv.SaveJSON(s.key, s.rules); err != nil {
		util.Error("Failed to persist rules: %v", err)
		return fmt.Errorf("failed to persist rules: %w", err)
	}
	return nil
}

func renumber(rules []model.Rule) {
	for i := range rules {
		rules[i].Position = i
	}
}

func cloneRule(r model.Rule) model.Rule {
	if r.Conditions.DstPort != nil {
		port := *r.Conditions.DstPort
		r.Conditions.DstPort = &port
	}
	return r
}

func cloneRules(rules []model.Rule) []model.Rule {
	if rules == nil {
		return nil
	}
	out := make([]model.Rule, len(rules))
	for i, r := range rules {
		out[i] = cloneRule(r)
	}
	return out
}
