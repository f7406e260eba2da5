package repository

import (
	"testing"
	"time"

	"booking-gate/backend/internal/session/domain"
	"booking-gate/backend/internal/ttlstore"
)

func TestMemoryRepository_DoesNotKeepRawToken(t *testing.T) {
	repo := NewMemoryRepository(ttlstore.New[domain.Session]())
	repo.Create(&domain.Session{Token: "raw", TokenHash: "hash-1", Context: domain.ContextBooking}, time.Minute)

	got := repo.GetByTokenHash("hash-1")
	if got == nil {
		t.Fatal("GetByTokenHash returned nil for stored session")
	}
	if got.Token != "" {
		t.Errorf("stored Token = %q, want empty", got.Token)
	}
}

func TestMemoryRepository_GetReturnsCopy(t *testing.T) {
	repo := NewMemoryRepository(ttlstore.New[domain.Session]())
	repo.Create(&domain.Session{TokenHash: "h", Identifier: "a@example.com"}, time.Minute)

	got := repo.GetByTokenHash("h")
	got.Identifier = "mutated"

	if again := repo.GetByTokenHash("h"); again.Identifier != "a@example.com" {
		t.Errorf("Identifier = %q, store was mutated through a returned copy", again.Identifier)
	}
}

func TestMemoryRepository_SetIdentity(t *testing.T) {
	repo := NewMemoryRepository(ttlstore.New[domain.Session]())
	repo.Create(&domain.Session{TokenHash: "h"}, time.Minute)

	testCases := []struct {
		name        string
		hash        string
		identity    string
		wantFound   bool
		wantUpdated bool
	}{
		{"missing", "nope", "c1", false, false},
		{"first promotion", "h", "c1", true, true},
		{"same identity again", "h", "c1", true, true},
		{"different identity", "h", "c2", true, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			found, updated := repo.SetIdentity(tc.hash, tc.identity)
			if found != tc.wantFound || updated != tc.wantUpdated {
				t.Errorf("SetIdentity = (%v, %v), want (%v, %v)", found, updated, tc.wantFound, tc.wantUpdated)
			}
		})
	}
	if got := repo.GetByTokenHash("h"); got.IdentityID == nil || *got.IdentityID != "c1" {
		t.Errorf("IdentityID = %v, want c1", got.IdentityID)
	}
	if repo.Count() != 1 {
		t.Errorf("Count = %d, want 1", repo.Count())
	}
}
