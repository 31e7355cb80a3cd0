package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"gymhub/backend/internal/backend"
)

type gymRow struct {
	ID        string    `json:"id,omitempty"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	Photos    []string  `json:"photos"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

func TestStore_InsertGeneratesIDAndCreatedAt(t *testing.T) {
	s := New()
	ctx := context.Background()
	var got gymRow
	if err := s.Insert(ctx, backend.TableGyms, map[string]any{"owner_id": "o1", "name": "PowerFit", "location": "Downtown", "photos": []string{}}, &got); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if got.ID == "" {
		t.Error("id should be generated")
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at should be generated")
	}
}

func TestStore_SelectFiltersOrderLimit(t *testing.T) {
	s := New()
	ctx := context.Background()
	rows := []gymRow{
		{ID: "g1", OwnerID: "o1", Name: "PowerFit Arena", Location: "Downtown", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "g2", OwnerID: "o1", Name: "Zen Wellness", Location: "Uptown", CreatedAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "g3", OwnerID: "o2", Name: "Iron Works", Location: "Muscle City", CreatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, r := range rows {
		if err := s.Insert(ctx, backend.TableGyms, r, nil); err != nil {
			t.Fatalf("Insert %s: %v", r.ID, err)
		}
	}

	var owned []gymRow
	err := s.Select(ctx, backend.TableGyms, backend.Query{
		Filters: []backend.Filter{backend.Eq("owner_id", "o1")},
		Order:   []backend.Order{{Column: "created_at", Descending: true}},
	}, &owned)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(owned) != 2 || owned[0].ID != "g2" || owned[1].ID != "g1" {
		t.Errorf("owned = %+v, want g2 then g1", owned)
	}

	var matched []gymRow
	if err := s.Select(ctx, backend.TableGyms, backend.Query{Filters: []backend.Filter{backend.ILike("name", "%power%")}}, &matched); err != nil {
		t.Fatalf("Select ilike: %v", err)
	}
	if len(matched) != 1 || matched[0].ID != "g1" {
		t.Errorf("ilike matched = %+v, want g1", matched)
	}

	var in []gymRow
	if err := s.Select(ctx, backend.TableGyms, backend.Query{Filters: []backend.Filter{backend.In("id", []string{"g1", "g3"})}, Limit: 1, Order: []backend.Order{{Column: "id"}}}, &in); err != nil {
		t.Fatalf("Select in: %v", err)
	}
	if len(in) != 1 || in[0].ID != "g1" {
		t.Errorf("in+limit = %+v, want g1", in)
	}

	var after []gymRow
	if err := s.Select(ctx, backend.TableGyms, backend.Query{Filters: []backend.Filter{backend.Gte("created_at", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))}}, &after); err != nil {
		t.Fatalf("Select gte: %v", err)
	}
	if len(after) != 2 {
		t.Errorf("gte matched %d rows, want 2", len(after))
	}
}

func TestStore_SelectEmptyDecodesToEmptySlice(t *testing.T) {
	s := New()
	var got []gymRow
	if err := s.Select(context.Background(), backend.TableGyms, backend.Query{}, &got); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got = %#v, want empty non-nil slice", got)
	}
}

func TestStore_ConditionalUpdate(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.Insert(ctx, backend.TableApplications, backend.Row{"id": "a1", "user_id": "u1", "status": "pending"}, nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	n, err := s.Update(ctx, backend.TableApplications, backend.Row{"status": "approved"}, backend.Eq("id", "a1"), backend.Eq("status", "pending"))
	if err != nil || n != 1 {
		t.Fatalf("first Update = %d, %v; want 1, nil", n, err)
	}
	n, err = s.Update(ctx, backend.TableApplications, backend.Row{"status": "approved"}, backend.Eq("id", "a1"), backend.Eq("status", "pending"))
	if err != nil || n != 0 {
		t.Fatalf("second Update = %d, %v; want 0, nil", n, err)
	}
}

func TestStore_UniqueUserRole(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.Insert(ctx, backend.TableUserRoles, backend.Row{"user_id": "u1", "role": "user"}, nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	err := s.Insert(ctx, backend.TableUserRoles, backend.Row{"user_id": "u1", "role": "owner"}, nil)
	if !errors.Is(err, backend.ErrConflict) {
		t.Errorf("second insert err = %v, want ErrConflict", err)
	}
}

func TestStore_DeleteAndHook(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.Insert(ctx, backend.TablePlans, backend.Row{"id": "p1", "gym_id": "g1"}, nil)
	_ = s.Insert(ctx, backend.TablePlans, backend.Row{"id": "p2", "gym_id": "g2"}, nil)
	n, err := s.Delete(ctx, backend.TablePlans, backend.Eq("gym_id", "g1"))
	if err != nil || n != 1 {
		t.Fatalf("Delete = %d, %v; want 1, nil", n, err)
	}

	boom := errors.New("boom")
	s.SetHook(func(op, table string) error {
		if op == "update" && table == backend.TablePlans {
			return boom
		}
		return nil
	})
	if _, err := s.Update(ctx, backend.TablePlans, backend.Row{"is_active": false}, backend.Eq("id", "p2")); !errors.Is(err, boom) {
		t.Errorf("Update err = %v, want hook error", err)
	}
}

func TestStore_InvalidColumn(t *testing.T) {
	s := New()
	var out []gymRow
	err := s.Select(context.Background(), backend.TableGyms, backend.Query{Filters: []backend.Filter{backend.Eq("name; drop", "x")}}, &out)
	if !errors.Is(err, backend.ErrInvalidIdentifier) {
		t.Errorf("err = %v, want ErrInvalidIdentifier", err)
	}
}

func TestStore_Files(t *testing.T) {
	s := New()
	ctx := context.Background()
	fs := s.Files()
	url, err := fs.Upload(ctx, "gym-photos", "g1/a.jpg", []byte("jpeg"), "image/jpeg")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if url != "memory://gym-photos/g1/a.jpg" {
		t.Errorf("url = %q", url)
	}
	if _, ok := s.Object("gym-photos", "g1/a.jpg"); !ok {
		t.Error("object should exist after upload")
	}
	if err := fs.Delete(ctx, "gym-photos", "g1/a.jpg"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := s.Object("gym-photos", "g1/a.jpg"); ok {
		t.Error("object should be gone after delete")
	}
}
