package store

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"signalcore/internal/domain"
)

const accountsFile = "accounts.json"

// AccountFileStore persists per-directory account profiles to disk. Profiles
// hold no secrets, so the file is plain JSON.
type AccountFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewAccountFileStore returns an AccountFileStore rooted at dir.
func NewAccountFileStore(dir string) *AccountFileStore {
	return &AccountFileStore{dir: dir}
}

// SaveAccountProfile stores or updates the given profile.
func (s *AccountFileStore) SaveAccountProfile(profile domain.AccountProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, accountsFile)
	profiles := make(map[string]domain.AccountProfile)
	if err := readJSON(path, &profiles); err != nil {
		return fmt.Errorf("read %s: %w", accountsFile, err)
	}
	profiles[accountKey(profile.ServerURL, profile.Username)] = profile
	return writeJSON(path, profiles, 0o600)
}

// LoadAccountProfile retrieves a profile for (serverURL, username). An empty
// username selects the first profile registered against serverURL.
func (s *AccountFileStore) LoadAccountProfile(
	serverURL string,
	username domain.Username,
) (domain.AccountProfile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, accountsFile)
	profiles := make(map[string]domain.AccountProfile)
	if err := readJSON(path, &profiles); err != nil {
		return domain.AccountProfile{}, false, err
	}
	if username != "" {
		profile, ok := profiles[accountKey(serverURL, username)]
		return profile, ok, nil
	}

	keys := make([]string, 0, len(profiles))
	for k, p := range profiles {
		if p.ServerURL == serverURL {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return domain.AccountProfile{}, false, nil
	}
	sort.Strings(keys)
	return profiles[keys[0]], true, nil
}

func accountKey(serverURL string, username domain.Username) string {
	return fmt.Sprintf("%s|%s", serverURL, username.String())
}

// Compile-time assertion that AccountFileStore implements domain.AccountStore.
var _ domain.AccountStore = (*AccountFileStore)(nil)
