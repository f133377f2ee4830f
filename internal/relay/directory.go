package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"signalcore/internal/domain"
)

var (
	// ErrNotFound is returned when no bundle or account matches a lookup.
	ErrNotFound = errors.New("not found")

	// ErrUUIDTaken is returned when a uuid is already bound to another
	// username.
	ErrUUIDTaken = errors.New("uuid already bound to another username")
)

// Directory is the storage behind the key directory server.
type Directory interface {
	// Publish replaces the bundle for (Username, DeviceID), including its
	// one-time pre-keys.
	Publish(ctx context.Context, bundle domain.PublishedBundle) error

	// Take returns the bundle for (username, deviceID) and removes one
	// one-time pre-key from it, or nil when none are left.
	Take(ctx context.Context, username domain.Username, deviceID uint32) (domain.PublishedBundle, *domain.OneTimePreKeyPublic, error)

	// Get returns the bundle without consuming anything.
	Get(ctx context.Context, username domain.Username, deviceID uint32) (domain.PublishedBundle, error)

	// BindAccount records that uuid belongs to username.
	BindAccount(ctx context.Context, uuid string, username domain.Username) error

	// LookupAccount returns the username bound to uuid.
	LookupAccount(ctx context.Context, uuid string) (domain.Username, error)
}

func deviceKey(username domain.Username, deviceID uint32) string {
	return fmt.Sprintf("%s.%d", username, deviceID)
}

// MemoryDirectory keeps everything in process memory.
type MemoryDirectory struct {
	mu       sync.Mutex
	bundles  map[string]domain.PublishedBundle
	accounts map[string]domain.Username
}

// NewMemoryDirectory returns an empty in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		bundles:  make(map[string]domain.PublishedBundle),
		accounts: make(map[string]domain.Username),
	}
}

func (d *MemoryDirectory) Publish(_ context.Context, b domain.PublishedBundle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b.OneTimePreKeys = append([]domain.OneTimePreKeyPublic(nil), b.OneTimePreKeys...)
	d.bundles[deviceKey(b.Username, b.DeviceID)] = b
	return nil
}

func (d *MemoryDirectory) Take(_ context.Context, username domain.Username, deviceID uint32) (domain.PublishedBundle, *domain.OneTimePreKeyPublic, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := deviceKey(username, deviceID)
	b, ok := d.bundles[k]
	if !ok {
		return domain.PublishedBundle{}, nil, fmt.Errorf("bundle %s: %w", k, ErrNotFound)
	}
	if len(b.OneTimePreKeys) == 0 {
		return b, nil, nil
	}
	opk := b.OneTimePreKeys[0]
	b.OneTimePreKeys = b.OneTimePreKeys[1:]
	d.bundles[k] = b
	return b, &opk, nil
}

func (d *MemoryDirectory) Get(_ context.Context, username domain.Username, deviceID uint32) (domain.PublishedBundle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := deviceKey(username, deviceID)
	b, ok := d.bundles[k]
	if !ok {
		return domain.PublishedBundle{}, fmt.Errorf("bundle %s: %w", k, ErrNotFound)
	}
	return b, nil
}

func (d *MemoryDirectory) BindAccount(_ context.Context, uuid string, username domain.Username) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if bound, ok := d.accounts[uuid]; ok && bound != username {
		return fmt.Errorf("%s: %w", uuid, ErrUUIDTaken)
	}
	d.accounts[uuid] = username
	return nil
}

func (d *MemoryDirectory) LookupAccount(_ context.Context, uuid string) (domain.Username, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.accounts[uuid]
	if !ok {
		return "", fmt.Errorf("account %s: %w", uuid, ErrNotFound)
	}
	return u, nil
}

var _ Directory = (*MemoryDirectory)(nil)
