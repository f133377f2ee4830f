package identity_test

import (
	"context"
	"errors"
	"testing"

	"signalcore/internal/crypto"
	"signalcore/internal/domain"
	"signalcore/internal/services/identity"
	"signalcore/internal/store"
)

func TestGenerateIdentity_Stores(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	svc := identity.New(st, nil, nil)

	id, fp, err := svc.GenerateIdentity(ctx)
	if err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	if fp == "" {
		t.Fatal("empty fingerprint")
	}
	got, err := st.GetIdentityKeyPair(ctx)
	if err != nil || !got.IdentityKey.Equal(id.IdentityKey) {
		t.Fatalf("stored identity mismatch: %v", err)
	}
	reg, err := st.GetLocalRegistrationID(ctx)
	if err != nil || reg == 0 || reg > 16380 {
		t.Fatalf("registration id %d out of range: %v", reg, err)
	}
	again, err := svc.FingerprintIdentity(ctx)
	if err != nil || again != fp {
		t.Fatalf("FingerprintIdentity = %q, %v; want %q", again, err, fp)
	}
}

func TestSafetyNumber_MatchesBothSides(t *testing.T) {
	ctx := context.Background()
	aliceStore, bobStore := store.NewMemoryStore(), store.NewMemoryStore()
	alice, bob := identity.New(aliceStore, nil, nil), identity.New(bobStore, nil, nil)

	aliceID, _, err := alice.GenerateIdentity(ctx)
	if err != nil {
		t.Fatalf("alice: %v", err)
	}
	bobID, _, err := bob.GenerateIdentity(ctx)
	if err != nil {
		t.Fatalf("bob: %v", err)
	}
	record := func(s *store.MemoryStore, name string, key crypto.IdentityKey) {
		t.Helper()
		if _, err := s.SaveIdentity(ctx, domain.NewProtocolAddress(name, 1), key); err != nil {
			t.Fatalf("SaveIdentity: %v", err)
		}
	}
	record(aliceStore, "bob", bobID.IdentityKey)
	record(bobStore, "alice", aliceID.IdentityKey)

	a, err := alice.SafetyNumber(ctx, "alice", domain.NewProtocolAddress("bob", 1))
	if err != nil {
		t.Fatalf("alice SafetyNumber: %v", err)
	}
	b, err := bob.SafetyNumber(ctx, "bob", domain.NewProtocolAddress("alice", 1))
	if err != nil {
		t.Fatalf("bob SafetyNumber: %v", err)
	}
	if a.Display.String() != b.Display.String() {
		t.Fatalf("display mismatch:\n%s\n%s", a.Display, b.Display)
	}
	if ok, err := a.Scannable.Compare(b.Scannable.Serialize()); err != nil || !ok {
		t.Fatalf("scannable compare: %v %v", ok, err)
	}
}

func TestSafetyNumber_UnknownPeer(t *testing.T) {
	ctx := context.Background()
	svc := identity.New(store.NewMemoryStore(), nil, nil)
	if _, _, err := svc.GenerateIdentity(ctx); err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	_, err := svc.SafetyNumber(ctx, "alice", domain.NewProtocolAddress("nobody", 1))
	if !errors.Is(err, identity.ErrUnknownPeer) {
		t.Fatalf("want ErrUnknownPeer, got %v", err)
	}
}

func TestValidatePassphrase(t *testing.T) {
	for _, tc := range []struct {
		pass string
		ok   bool
	}{
		{"short", false},
		{"alllowercase123!", false},
		{"NoDigitsHere!!", false},
		{"Correct-Horse-9!", true},
	} {
		err := identity.ValidatePassphrase(tc.pass)
		if (err == nil) != tc.ok {
			t.Fatalf("ValidatePassphrase(%q) = %v", tc.pass, err)
		}
	}
}
