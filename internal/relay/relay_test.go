package relay_test

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"signalcore/internal/crypto"
	"signalcore/internal/domain"
	"signalcore/internal/relay"
	identitysvc "signalcore/internal/services/identity"
	prekeysvc "signalcore/internal/services/prekey"
	"signalcore/internal/store"
)

const aliceUUID = "5e2f3c1a-8b7d-4e6f-9a0b-1c2d3e4f5a6b"

func directories(t *testing.T) map[string]relay.Directory {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return map[string]relay.Directory{
		"memory": relay.NewMemoryDirectory(),
		"redis":  relay.NewRedisDirectory(rdb, "keydir"),
	}
}

type fixture struct {
	client    *relay.Client
	trustRoot crypto.KeyPair
}

func newFixture(t *testing.T, dir relay.Directory) fixture {
	t.Helper()
	root, err := crypto.GenerateKeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	signer, err := relay.NewSigner(rand.Reader, root, 7)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	srv := httptest.NewServer(relay.NewServer(dir, signer, time.Hour, nil).Router())
	t.Cleanup(srv.Close)
	return fixture{client: relay.NewClient(srv.URL, srv.Client()), trustRoot: root}
}

// published creates an identity and count one-time pre-keys for username.
func published(t *testing.T, username domain.Username, count int) (domain.PublishedBundle, crypto.IdentityKeyPair) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	id, _, err := identitysvc.New(st, nil, nil).GenerateIdentity(ctx)
	if err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	b, err := prekeysvc.New(st, nil, nil).GeneratePreKeys(ctx, username, domain.DefaultDeviceID, count)
	if err != nil {
		t.Fatalf("GeneratePreKeys: %v", err)
	}
	return b, id
}

func TestDirectory_PublishAndFetch(t *testing.T) {
	for name, dir := range directories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, dir)
			pb, id := published(t, "alice", 2)
			if err := f.client.PublishBundle(ctx, pb); err != nil {
				t.Fatalf("PublishBundle: %v", err)
			}

			seen := map[uint32]bool{}
			for i := 0; i < 2; i++ {
				b, err := f.client.FetchBundle(ctx, "alice", domain.DefaultDeviceID)
				if err != nil {
					t.Fatalf("FetchBundle #%d: %v", i, err)
				}
				if !b.IdentityKey().Equal(id.IdentityKey) {
					t.Fatal("fetched identity key differs")
				}
				if err := b.VerifySignatures(); err != nil {
					t.Fatalf("VerifySignatures: %v", err)
				}
				if _, _, _, ok := b.KyberPreKey(); !ok {
					t.Fatal("kyber pre-key missing")
				}
				opkID, _, ok := b.PreKey()
				if !ok {
					t.Fatalf("fetch #%d has no one-time pre-key", i)
				}
				if seen[opkID] {
					t.Fatalf("one-time pre-key %d handed out twice", opkID)
				}
				seen[opkID] = true
			}

			b, err := f.client.FetchBundle(ctx, "alice", domain.DefaultDeviceID)
			if err != nil {
				t.Fatalf("FetchBundle after exhaustion: %v", err)
			}
			if _, _, ok := b.PreKey(); ok {
				t.Fatal("one-time pre-key served after exhaustion")
			}
		})
	}
}

func TestDirectory_UnknownBundle(t *testing.T) {
	f := newFixture(t, relay.NewMemoryDirectory())
	_, err := f.client.FetchBundle(context.Background(), "nobody", domain.DefaultDeviceID)
	if !errors.Is(err, relay.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDirectory_RejectsForgedBundle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, relay.NewMemoryDirectory())
	pb, _ := published(t, "mallory", 1)
	pb.SignedPreKey.Signature = append([]byte(nil), pb.SignedPreKey.Signature...)
	pb.SignedPreKey.Signature[3] ^= 0x10

	err := f.client.PublishBundle(ctx, pb)
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("PublishBundle err = %v, want 400", err)
	}
}

func TestDirectory_CertificateAndLookup(t *testing.T) {
	for name, dir := range directories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, dir)
			pb, id := published(t, "alice", 0)
			if err := f.client.PublishBundle(ctx, pb); err != nil {
				t.Fatalf("PublishBundle: %v", err)
			}

			root, err := f.client.TrustRoot(ctx)
			if err != nil || !root.Equal(f.trustRoot.PublicKey) {
				t.Fatalf("TrustRoot = %v, %v", root, err)
			}

			cert, err := f.client.IssueSenderCertificate(ctx, domain.CertificateRequest{
				Username: "alice",
				DeviceID: domain.DefaultDeviceID,
				UUID:     aliceUUID,
				E164:     "+15550100",
			})
			if err != nil {
				t.Fatalf("IssueSenderCertificate: %v", err)
			}
			now := uint64(time.Now().UnixMilli())
			if err := cert.Validate(root, now); err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if !cert.Key().Equal(id.PublicKey()) || cert.SenderUUID() != aliceUUID {
				t.Fatal("certificate not bound to the published identity")
			}
			if e164, ok := cert.SenderE164(); !ok || e164 != "+15550100" {
				t.Fatalf("SenderE164 = %q, %v", e164, ok)
			}

			who, err := f.client.LookupAccount(ctx, aliceUUID)
			if err != nil || who != "alice" {
				t.Fatalf("LookupAccount = %q, %v", who, err)
			}

			other, _ := published(t, "eve", 0)
			if err := f.client.PublishBundle(ctx, other); err != nil {
				t.Fatalf("PublishBundle: %v", err)
			}
			_, err = f.client.IssueSenderCertificate(ctx, domain.CertificateRequest{
				Username: "eve", DeviceID: domain.DefaultDeviceID, UUID: aliceUUID,
			})
			if err == nil || !strings.Contains(err.Error(), "409") {
				t.Fatalf("stolen uuid err = %v, want 409", err)
			}
		})
	}
}

func TestDirectory_CertificateRequiresPublishedIdentity(t *testing.T) {
	f := newFixture(t, relay.NewMemoryDirectory())
	_, err := f.client.IssueSenderCertificate(context.Background(), domain.CertificateRequest{
		Username: "ghost", DeviceID: 1, UUID: aliceUUID,
	})
	if !errors.Is(err, relay.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestServer_BadDeviceRoute(t *testing.T) {
	f := newFixture(t, relay.NewMemoryDirectory())
	resp, err := http.Get(f.client.Base + "/v1/keys/alice/notanumber")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for unmatched route", resp.StatusCode)
	}
}
