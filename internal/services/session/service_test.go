package session_test

import (
	"context"
	"crypto/rand"
	"sync"
	"testing"

	"signalcore/internal/crypto"
	"signalcore/internal/domain"
	"signalcore/internal/protocol/prekey"
	"signalcore/internal/services/session"
	"signalcore/internal/store"
	"signalcore/internal/util/keymutex"
)

func newStore(t *testing.T, regID uint32) (*store.MemoryStore, crypto.IdentityKeyPair) {
	t.Helper()
	id, err := crypto.GenerateIdentityKeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateIdentityKeyPair: %v", err)
	}
	st := store.NewMemoryStore()
	if err := st.SetLocalIdentity(context.Background(), id, regID); err != nil {
		t.Fatalf("SetLocalIdentity: %v", err)
	}
	return st, id
}

func remoteBundle(t *testing.T, kyber bool) *prekey.Bundle {
	t.Helper()
	id, err := crypto.GenerateIdentityKeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateIdentityKeyPair: %v", err)
	}
	spk, err := prekey.GenerateSignedPreKey(rand.Reader, id, 5, 0)
	if err != nil {
		t.Fatalf("GenerateSignedPreKey: %v", err)
	}
	opk, err := prekey.GeneratePreKey(rand.Reader, 9)
	if err != nil {
		t.Fatalf("GeneratePreKey: %v", err)
	}
	opkID, opkPub := opk.ID(), opk.PublicKey()
	b, err := prekey.NewBundle(77, domain.DefaultDeviceID, &opkID, &opkPub,
		spk.ID(), spk.PublicKey(), spk.Signature(), id.IdentityKey)
	if err != nil {
		t.Fatalf("NewBundle: %v", err)
	}
	if kyber {
		k, err := prekey.GenerateKyberPreKey(rand.Reader, id, 3, 0)
		if err != nil {
			t.Fatalf("GenerateKyberPreKey: %v", err)
		}
		b = b.WithKyberPreKey(k.ID(), k.PublicKey(), k.Signature())
	}
	return b
}

func TestProcessPreKeyBundle_StoresPendingSession(t *testing.T) {
	for name, tc := range map[string]struct {
		kyber   bool
		version uint32
	}{
		"x3dh":  {kyber: false, version: 3},
		"pqxdh": {kyber: true, version: 4},
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st, _ := newStore(t, 42)
			b := session.New(st, nil, nil, nil)
			bob := domain.NewProtocolAddress("bob", domain.DefaultDeviceID)
			bundle := remoteBundle(t, tc.kyber)

			if err := b.ProcessPreKeyBundle(ctx, bob, bundle); err != nil {
				t.Fatalf("ProcessPreKeyBundle: %v", err)
			}

			rec, ok, err := st.LoadSession(ctx, bob)
			if err != nil || !ok {
				t.Fatalf("LoadSession ok=%v err=%v", ok, err)
			}
			if v, _ := rec.SessionVersion(); v != tc.version {
				t.Fatalf("version = %d, want %d", v, tc.version)
			}
			if local, _ := rec.LocalRegistrationID(); local != 42 {
				t.Fatalf("local registration id = %d", local)
			}
			if remote, _ := rec.RemoteRegistrationID(); remote != 77 {
				t.Fatalf("remote registration id = %d", remote)
			}

			cur, err := rec.SessionState()
			if err != nil {
				t.Fatalf("SessionState: %v", err)
			}
			pending, ok := cur.PendingPreKey()
			if !ok {
				t.Fatal("no pending pre-key after handshake")
			}
			if pending.SignedPreKeyID != 5 || pending.PreKeyID == nil || *pending.PreKeyID != 9 {
				t.Fatalf("pending = %+v", pending)
			}
			if tc.kyber != (pending.KyberPreKeyID != nil) {
				t.Fatalf("kyber pending id = %v, want kyber=%v", pending.KyberPreKeyID, tc.kyber)
			}
			if !rec.HasSenderChain() {
				t.Fatal("initiator should have a sender chain")
			}

			saved, ok, err := st.GetIdentity(ctx, bob)
			if err != nil || !ok || !saved.Equal(bundle.IdentityKey()) {
				t.Fatalf("identity not saved: ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestProcessPreKeyBundle_ArchivesPreviousSession(t *testing.T) {
	ctx := context.Background()
	st, _ := newStore(t, 1)
	b := session.New(st, nil, nil, nil)
	bob := domain.NewProtocolAddress("bob", domain.DefaultDeviceID)
	bundle := remoteBundle(t, false)

	for i := 0; i < 2; i++ {
		if err := b.ProcessPreKeyBundle(ctx, bob, bundle); err != nil {
			t.Fatalf("ProcessPreKeyBundle #%d: %v", i, err)
		}
	}
	rec, _, err := st.LoadSession(ctx, bob)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if n := len(rec.PreviousStates()); n != 1 {
		t.Fatalf("archived states = %d, want 1", n)
	}
}

func TestProcessPreKeyBundle_ConcurrentSameAddress(t *testing.T) {
	ctx := context.Background()
	st, _ := newStore(t, 1)
	locks := keymutex.New()
	b := session.New(st, locks, nil, nil)
	bob := domain.NewProtocolAddress("bob", domain.DefaultDeviceID)
	bundle := remoteBundle(t, true)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- b.ProcessPreKeyBundle(ctx, bob, bundle)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("ProcessPreKeyBundle: %v", err)
		}
	}

	rec, _, err := st.LoadSession(ctx, bob)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if got := len(rec.PreviousStates()) + 1; got != n {
		t.Fatalf("states = %d, want %d (one per handshake)", got, n)
	}
	if locks.Len() != 0 {
		t.Fatalf("lock entries left behind: %d", locks.Len())
	}
}
