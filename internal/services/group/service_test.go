package group_test

import (
	"context"
	"errors"
	"testing"

	"signalcore/internal/domain"
	"signalcore/internal/protoerr"
	"signalcore/internal/services/group"
	"signalcore/internal/store"
)

const groupID = "book-club"

func name(sender string) domain.SenderKeyName {
	return domain.SenderKeyName{GroupID: groupID, Sender: domain.NewProtocolAddress(sender, 1)}
}

func TestGroup_DistributeEncryptDecrypt(t *testing.T) {
	ctx := context.Background()
	alice := group.New(store.NewMemoryStore(), nil, nil)
	bob := group.New(store.NewMemoryStore(), nil, nil)
	carol := group.New(store.NewMemoryStore(), nil, nil)

	skdm, err := alice.CreateDistributionMessage(ctx, name("alice"))
	if err != nil {
		t.Fatalf("CreateDistributionMessage: %v", err)
	}
	again, err := alice.CreateDistributionMessage(ctx, name("alice"))
	if err != nil || again.KeyID() != skdm.KeyID() {
		t.Fatalf("second distribution key id = %d, %v; want %d", again.KeyID(), err, skdm.KeyID())
	}
	for _, member := range []*group.Cipher{bob, carol} {
		if err := member.ProcessDistributionMessage(ctx, name("alice"), skdm); err != nil {
			t.Fatalf("ProcessDistributionMessage: %v", err)
		}
	}

	var sent [][]byte
	for _, text := range []string{"chapter one", "chapter two", "chapter three"} {
		msg, err := alice.Encrypt(ctx, name("alice"), []byte(text))
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}
		sent = append(sent, msg.Serialize())
	}

	for i, want := range []string{"chapter one", "chapter two", "chapter three"} {
		got, err := bob.Decrypt(ctx, name("alice"), sent[i])
		if err != nil || string(got) != want {
			t.Fatalf("bob Decrypt #%d = %q, %v; want %q", i, got, err, want)
		}
	}
	// carol reads out of order
	for _, i := range []int{2, 0, 1} {
		if _, err := carol.Decrypt(ctx, name("alice"), sent[i]); err != nil {
			t.Fatalf("carol Decrypt #%d: %v", i, err)
		}
	}
	if _, err := bob.Decrypt(ctx, name("alice"), sent[0]); !errors.Is(err, protoerr.ErrDuplicatedMessage) {
		t.Fatalf("replay err = %v, want ErrDuplicatedMessage", err)
	}
}

func TestGroup_NoSenderKey(t *testing.T) {
	ctx := context.Background()
	c := group.New(store.NewMemoryStore(), nil, nil)
	if _, err := c.Encrypt(ctx, name("alice"), []byte("x")); !errors.Is(err, protoerr.ErrNoSenderKeyState) {
		t.Fatalf("Encrypt err = %v, want ErrNoSenderKeyState", err)
	}
	if _, err := c.Decrypt(ctx, name("alice"), []byte{0x33}); !errors.Is(err, protoerr.ErrNoSenderKeyState) {
		t.Fatalf("Decrypt err = %v, want ErrNoSenderKeyState", err)
	}
}
