package profile

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryDirectory is a Directory held in process memory.
type MemoryDirectory struct {
	mu       sync.RWMutex
	contacts map[int64]Contact
	users    map[string]User
}

// NewMemoryDirectory creates a directory holding the given rows.
func NewMemoryDirectory(contacts []Contact, users []User) *MemoryDirectory {
	d := &MemoryDirectory{
		contacts: make(map[int64]Contact, len(contacts)),
		users:    make(map[string]User, len(users)),
	}
	for _, c := range contacts {
		d.contacts[c.ID] = c
	}
	for _, u := range users {
		d.users[u.Username] = u
	}
	return d
}

// NewSeededDirectory creates a directory holding SeedContacts and SeedUsers.
func NewSeededDirectory() *MemoryDirectory {
	return NewMemoryDirectory(SeedContacts(), SeedUsers())
}

// Contacts returns every contact ordered by ID.
func (d *MemoryDirectory) Contacts(_ context.Context) ([]Contact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Contact, 0, len(d.contacts))
	for _, c := range d.contacts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *MemoryDirectory) Contact(_ context.Context, id int64) (Contact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.contacts[id]
	if !ok {
		return Contact{}, ErrNotFound
	}
	return c, nil
}

func (d *MemoryDirectory) UserByUsername(_ context.Context, username string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[username]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

// SeedContacts returns the sample contact list.
func SeedContacts() []Contact {
	return []Contact{
		{ID: 1, Name: "Emma Watson", Status: StatusOnline, LastSeen: "Just now", Unread: 3},
		{ID: 2, Name: "James Rodriguez", Status: StatusOnline, LastSeen: "2m ago"},
		{ID: 3, Name: "Sarah Johnson", Status: StatusOffline, LastSeen: "1h ago"},
		{ID: 4, Name: "Mike Chen", Status: StatusOffline, LastSeen: "Yesterday"},
		{ID: 5, Name: "Lisa Parker", Status: StatusOnline, LastSeen: "Just now", Unread: 1},
	}
}

// SeedUsers returns the sample accounts.
func SeedUsers() []User {
	now := time.Now().UTC()
	return []User{
		{
			ID:          "user_1",
			Username:    "alexsmith",
			DisplayName: "Alex Smith",
			Bio:         "Digital creator. Filmmaker. Exploring the world one video at a time.",
			Followers:   12340,
			Following:   450,
			Likes:       485600,
			CreatedAt:   now,
		},
		{
			ID:          "user_2",
			Username:    "janedoe",
			DisplayName: "Jane Doe",
			Bio:         "Adventure seeker. Travel vlogger.",
			Followers:   8250,
			Following:   320,
			Likes:       195000,
			CreatedAt:   now,
		},
	}
}
