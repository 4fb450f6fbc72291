package rules

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/hsafe/internal/model"
	"github.com/user/hsafe/internal/storage"
)

type memKV struct {
	data    map[string][]byte
	saveErr error
	loadErr error
}

func newMemKV() *memKV {
	return &memKV{data: map[string][]byte{}}
}

func (m *memKV) LoadJSON(key string, dst interface{}) (bool, error) {
	if m.loadErr != nil {
		return false, m.loadErr
	}
	b, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (m *memKV) SaveJSON(key string, v interface{}) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.data[key] = b
	return nil
}

func input(name, action string) RuleInput {
	return RuleInput{Name: name, Severity: "low", Action: action, Protocol: "tcp"}
}

func names(rules []model.Rule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.Name
	}
	return out
}

func TestStore_CreateAssignsIDAndPersists(t *testing.T) {
	kv := newMemKV()
	s := NewStore(kv)

	r, err := s.Create(input("block ssh", "deny"))
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.True(t, r.Enabled)
	assert.Equal(t, model.ActionDeny, r.Action)
	assert.Equal(t, model.ProtocolTCP, r.Protocol)

	var saved []model.Rule
	require.NoError(t, json.Unmarshal(kv.data[storage.KeyRules], &saved))
	require.Len(t, saved, 1)
	assert.Equal(t, r.ID, saved[0].ID)
}

func TestStore_CreateAtPosition(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Create(input("a", "ALLOW"))
	require.NoError(t, err)
	_, err = s.Create(input("b", "ALLOW"))
	require.NoError(t, err)

	in := input("first", "DENY")
	pos := 0
	in.Position = &pos
	_, err = s.Create(in)
	require.NoError(t, err)

	list := s.List()
	assert.Equal(t, []string{"first", "a", "b"}, names(list))
	for i, r := range list {
		assert.Equal(t, i, r.Position)
	}
}

func TestStore_CreateRejectsInvalid(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Create(RuleInput{Name: "bad", Severity: "LOW", Action: "DENY", DstPort: "ssh"})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "dst_port", verr.Field)
	assert.ErrorIs(t, err, ErrInvalidRule)
	assert.Equal(t, 0, s.Len())
}

func TestStore_UpdateKeepsIdentity(t *testing.T) {
	s := NewStore(nil)
	a, _ := s.Create(input("a", "ALLOW"))
	b, _ := s.Create(input("b", "ALLOW"))
	_, err := s.SetEnabled(b.ID, false)
	require.NoError(t, err)

	updated, err := s.Update(b.ID, RuleInput{Name: "b2", Severity: "HIGH", Action: "ALERT", DstPort: "443"})
	require.NoError(t, err)
	assert.Equal(t, b.ID, updated.ID)
	assert.Equal(t, 1, updated.Position)
	assert.False(t, updated.Enabled)
	assert.Equal(t, 443, *updated.Conditions.DstPort)

	list := s.List()
	assert.Equal(t, []string{a.Name, "b2"}, names(list))
}

func TestStore_NotFound(t *testing.T) {
	s := NewStore(nil)

	_, err := s.Get("nope")
	assert.ErrorIs(t, err, ErrRuleNotFound)
	assert.ErrorIs(t, s.Delete("nope"), ErrRuleNotFound)
	_, err = s.Toggle("nope")
	assert.ErrorIs(t, err, ErrRuleNotFound)
	assert.ErrorIs(t, s.MoveByID("nope", 0), ErrRuleNotFound)
}

func TestStore_ToggleAndEnabled(t *testing.T) {
	s := NewStore(nil)
	a, _ := s.Create(input("a", "ALLOW"))
	_, _ = s.Create(input("b", "DENY"))

	r, err := s.Toggle(a.ID)
	require.NoError(t, err)
	assert.False(t, r.Enabled)
	assert.Equal(t, []string{"b"}, names(s.Enabled()))

	r, err = s.Toggle(a.ID)
	require.NoError(t, err)
	assert.True(t, r.Enabled)
}

func TestStore_DeleteRenumbers(t *testing.T) {
	s := NewStore(nil)
	a, _ := s.Create(input("a", "ALLOW"))
	_, _ = s.Create(input("b", "ALLOW"))
	_, _ = s.Create(input("c", "ALLOW"))

	require.NoError(t, s.Delete(a.ID))
	list := s.List()
	assert.Equal(t, []string{"b", "c"}, names(list))
	assert.Equal(t, 0, list[0].Position)
	assert.Equal(t, 1, list[1].Position)
}

func TestStore_MoveByIDIdempotent(t *testing.T) {
	s := NewStore(nil)
	a, _ := s.Create(input("a", "ALLOW"))
	_, _ = s.Create(input("b", "ALLOW"))
	_, _ = s.Create(input("c", "ALLOW"))

	require.NoError(t, s.MoveByID(a.ID, 2))
	once := names(s.List())
	require.NoError(t, s.MoveByID(a.ID, 2))
	twice := names(s.List())

	assert.Equal(t, []string{"b", "c", "a"}, once)
	assert.Equal(t, once, twice)
}

func TestStore_MoveChangesDecision(t *testing.T) {
	s := NewStore(nil)
	_, _ = s.Create(RuleInput{Name: "deny ssh", Severity: "LOW", Action: "DENY", DstPort: "22"})
	_, _ = s.Create(RuleInput{Name: "allow all", Severity: "LOW", Action: "ALLOW"})
	pkt := model.Packet{DstPort: 22, Protocol: model.ProtocolTCP}

	assert.Equal(t, model.ActionDeny, Classify(s.List(), pkt).Action)
	require.NoError(t, s.Move(1, 0))
	assert.Equal(t, model.ActionAllow, Classify(s.List(), pkt).Action)
}

func TestStore_ReplaceValidates(t *testing.T) {
	kv := newMemKV()
	s := NewStore(kv)
	a, _ := s.Create(input("a", "ALLOW"))

	err := s.Replace([]model.Rule{{Name: "x", Action: "BLOCK", Severity: model.SeverityLow}})
	assert.ErrorIs(t, err, ErrInvalidRule)
	assert.Equal(t, []string{"a"}, names(s.List()))
	assert.Equal(t, a.ID, s.List()[0].ID)

	err = s.Replace([]model.Rule{
		{ID: "kept", Name: "deny web", Action: "deny", Severity: "high", Position: 7, Enabled: true},
		{Name: "allow", Action: model.ActionAllow, Severity: model.SeverityLow},
	})
	require.NoError(t, err)
	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "kept", list[0].ID)
	assert.Equal(t, model.ActionDeny, list[0].Action)
	assert.Equal(t, 0, list[0].Position)
	assert.NotEmpty(t, list[1].ID)
	assert.False(t, list[1].Enabled)

	reloaded := NewStore(kv)
	reloaded.Load()
	assert.Equal(t, list, reloaded.List())
}

func TestStore_SaveFailureKeepsMutation(t *testing.T) {
	kv := newMemKV()
	kv.saveErr = errors.New("disk full")
	s := NewStore(kv)

	_, err := s.Create(input("a", "ALLOW"))
	assert.Error(t, err)
	assert.Equal(t, 1, s.Len())
}

func TestStore_LoadFailureFallsBackToEmpty(t *testing.T) {
	kv := newMemKV()
	kv.loadErr = errors.New("corrupt")
	s := NewStore(kv)

	s.Load()
	assert.Equal(t, 0, s.Len())
}

func TestStore_LoadFromSQLite(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), storage.DBFile))
	require.NoError(t, err)
	defer db.Close()
	kv := storage.NewKVStorage(db)

	s := NewStore(kv)
	_, err = s.Create(input("a", "ALLOW"))
	require.NoError(t, err)
	_, err = s.Create(RuleInput{Name: "b", Severity: "CRITICAL", Action: "DENY", Protocol: "ANY", DstPort: "80"})
	require.NoError(t, err)

	reloaded := NewStore(kv)
	reloaded.Load()
	list := reloaded.List()
	require.Len(t, list, 2)
	assert.Equal(t, []string{"a", "b"}, names(list))
	assert.True(t, list[1].Protocol.IsWildcard())
	assert.Equal(t, 80, *list[1].Conditions.DstPort)
}
