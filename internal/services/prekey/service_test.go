package prekey_test

import (
	"context"
	"testing"

	"signalcore/internal/crypto"
	"signalcore/internal/kem"
	"signalcore/internal/services/identity"
	"signalcore/internal/services/prekey"
	"signalcore/internal/store"
)

func TestGeneratePreKeys_BundleVerifies(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	id, _, err := identity.New(st, nil, nil).GenerateIdentity(ctx)
	if err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}

	pub, err := prekey.New(st, nil, nil).GeneratePreKeys(ctx, "alice", 1, 5)
	if err != nil {
		t.Fatalf("GeneratePreKeys: %v", err)
	}
	if len(pub.OneTimePreKeys) != 5 {
		t.Fatalf("one-time pre-keys = %d", len(pub.OneTimePreKeys))
	}

	spk, err := crypto.DeserializePublicKey(pub.SignedPreKey.PublicKey)
	if err != nil {
		t.Fatalf("signed pre-key: %v", err)
	}
	if ok, err := id.IdentityKey.Verify(pub.SignedPreKey.Signature, spk.Serialize()); err != nil || !ok {
		t.Fatalf("signed pre-key signature: %v %v", ok, err)
	}
	if pub.KyberPreKey == nil {
		t.Fatal("missing kyber pre-key")
	}
	if _, err := kem.DeserializePublicKey(pub.KyberPreKey.PublicKey); err != nil {
		t.Fatalf("kyber pre-key: %v", err)
	}
	if ok, err := id.IdentityKey.Verify(pub.KyberPreKey.Signature, pub.KyberPreKey.PublicKey); err != nil || !ok {
		t.Fatalf("kyber pre-key signature: %v %v", ok, err)
	}

	for _, opk := range pub.OneTimePreKeys {
		if _, ok, err := st.GetPreKey(ctx, opk.ID); err != nil || !ok {
			t.Fatalf("one-time pre-key %d not stored: %v", opk.ID, err)
		}
	}
	if _, ok, err := st.GetSignedPreKey(ctx, pub.SignedPreKey.ID); err != nil || !ok {
		t.Fatalf("signed pre-key not stored: %v", err)
	}
	if _, ok, err := st.GetKyberPreKey(ctx, pub.KyberPreKey.ID); err != nil || !ok {
		t.Fatalf("kyber pre-key not stored: %v", err)
	}
}

func TestGeneratePreKeys_NeedsIdentity(t *testing.T) {
	if _, err := prekey.New(store.NewMemoryStore(), nil, nil).GeneratePreKeys(context.Background(), "alice", 1, 1); err == nil {
		t.Fatal("expected error without identity")
	}
}
