package circulation

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// MembershipRegistry is the member-store collaborator. Open-loan counting
// lives on the lending engine's own log so it can never drift from the
// loans actually recorded; the registry only stores member records and
// credentials. Implementations must be safe for concurrent use.
type MembershipRegistry interface {
	FindByKey(key string) (*Member, error)
	AddMember(name, email string, class MemberClass, password string) (*Member, error)
	RemoveMember(key string) (bool, error)
	SetStatus(key string, status MemberStatus) error
	AllMembers() ([]*Member, error)
	SearchByName(query string) ([]*Member, error)
	Authenticate(key, password string) error
	ResetPassword(key, password string) error
}

func hashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

func checkPassword(hash, password string) error {
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return ErrBadCredentials
	}
	return nil
}

// MemoryRegistry keeps members in a map guarded by a RWMutex. Lookups
// return copies.
type MemoryRegistry struct {
	mu      sync.RWMutex
	members map[string]*Member
	now     func() time.Time
}

// NewMemoryRegistry returns an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{members: make(map[string]*Member), now: time.Now}
}

func (r *MemoryRegistry) FindByKey(key string) (*Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[key]
	if !ok {
		return nil, fmt.Errorf("member %s: %w", key, ErrMemberNotFound)
	}
	cp := *m
	return &cp, nil
}

// AddMember registers a member with a generated key and an Active status.
func (r *MemoryRegistry) AddMember(name, email string, class MemberClass, password string) (*Member, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	m := &Member{
		Key:          newMemberKey(),
		Name:         name,
		Email:        email,
		Class:        class,
		Status:       MemberActive,
		JoinedAt:     r.now(),
		PasswordHash: hash,
	}
	r.members[m.Key] = m
	cp := *m
	return &cp, nil
}

func (r *MemoryRegistry) RemoveMember(key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[key]; !ok {
		return false, nil
	}
	delete(r.members, key)
	return true, nil
}

func (r *MemoryRegistry) SetStatus(key string, status MemberStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[key]
	if !ok {
		return fmt.Errorf("member %s: %w", key, ErrMemberNotFound)
	}
	m.Status = status
	return nil
}

func (r *MemoryRegistry) AllMembers() ([]*Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Member, 0, len(r.members))
	for _, m := range r.members {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// SearchByName does a case-insensitive substring match on member names.
func (r *MemoryRegistry) SearchByName(query string) ([]*Member, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return []*Member{}, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Member
	for _, m := range r.members {
		if strings.Contains(strings.ToLower(m.Name), query) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (r *MemoryRegistry) Authenticate(key, password string) error {
	m, err := r.FindByKey(key)
	if err != nil {
		return err
	}
	return checkPassword(m.PasswordHash, password)
}

func (r *MemoryRegistry) ResetPassword(key, password string) error {
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[key]
	if !ok {
		return fmt.Errorf("member %s: %w", key, ErrMemberNotFound)
	}
	m.PasswordHash = hash
	return nil
}
