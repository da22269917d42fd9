package profile

import (
	"context"
	"errors"
	"testing"
)

func TestSeededContacts(t *testing.T) {
	d := NewSeededDirectory()

	contacts, err := d.Contacts(context.Background())
	if err != nil {
		t.Fatalf("Contacts() error: %v", err)
	}
	want := []string{"Emma Watson", "James Rodriguez", "Sarah Johnson", "Mike Chen", "Lisa Parker"}
	if len(contacts) != len(want) {
		t.Fatalf("expected %d contacts, got %d", len(want), len(contacts))
	}
	for i, name := range want {
		if contacts[i].Name != name || contacts[i].ID != int64(i+1) {
			t.Errorf("contact %d: got %+v, want id=%d name=%q", i, contacts[i], i+1, name)
		}
	}
}

func TestContactLookup(t *testing.T) {
	d := NewSeededDirectory()
	ctx := context.Background()

	tests := []struct {
		id      int64
		wantErr error
		name    string
	}{
		{1, nil, "Emma Watson"},
		{4, nil, "Mike Chen"},
		{0, ErrNotFound, ""},
		{99, ErrNotFound, ""},
	}
	for _, tt := range tests {
		c, err := d.Contact(ctx, tt.id)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("Contact(%d) error = %v, want %v", tt.id, err, tt.wantErr)
			continue
		}
		if c.Name != tt.name {
			t.Errorf("Contact(%d) name = %q, want %q", tt.id, c.Name, tt.name)
		}
	}
}

func TestUserByUsername(t *testing.T) {
	d := NewSeededDirectory()
	ctx := context.Background()

	u, err := d.UserByUsername(ctx, "janedoe")
	if err != nil {
		t.Fatalf("UserByUsername() error: %v", err)
	}
	if u.ID != "user_2" || u.DisplayName != "Jane Doe" {
		t.Errorf("unexpected user: %+v", u)
	}

	if _, err := d.UserByUsername(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("ReadDir() error: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 migration files, got %d", len(entries))
	}
}
