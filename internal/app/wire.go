package app

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"os"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"signalcore/internal/domain"
	"signalcore/internal/logging"
	"signalcore/internal/relay"
	groupsvc "signalcore/internal/services/group"
	identitysvc "signalcore/internal/services/identity"
	messagesvc "signalcore/internal/services/message"
	prekeysvc "signalcore/internal/services/prekey"
	sessionsvc "signalcore/internal/services/session"
	"signalcore/internal/store"
	"signalcore/internal/util/keymutex"
)

// Wire bundles all stores, services, and clients for the CLI.
type Wire struct {
	Config   *Config
	Log      *zap.Logger
	Store    domain.ProtocolStore
	Accounts domain.AccountStore
	Identity *identitysvc.Service
	PreKeys  domain.PreKeyService
	Sessions domain.SessionService
	Messages domain.MessageService
	Groups   domain.GroupService
	KeyDir   domain.KeyDirectory

	redis *goredis.Client
}

// NewWire constructs the dependency graph from cfg. passphrase seals the
// local identity.
func NewWire(cfg *Config, passphrase string, log *zap.Logger) (*Wire, error) {
	log = logging.OrNop(log)
	if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
		return nil, fmt.Errorf("create home %s: %w", cfg.Home, err)
	}

	w := &Wire{Config: cfg, Log: log, Accounts: store.NewAccountFileStore(cfg.Home)}
	if cfg.RedisAddr != "" {
		w.redis = goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		w.Store = store.NewRedisStore(w.redis, cfg.RedisPrefix, passphrase)
	} else {
		w.Store = store.NewFileStore(cfg.Home, passphrase)
	}

	// Ensure an HTTP client is available for outbound calls
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	w.KeyDir = relay.NewClient(cfg.KeyDirURL, httpClient)

	locks := keymutex.New()
	builder := sessionsvc.New(w.Store, locks, rand.Reader, log.Named("session"))
	w.Identity = identitysvc.New(w.Store, rand.Reader, log.Named("identity"))
	w.PreKeys = prekeysvc.New(w.Store, rand.Reader, log.Named("prekey"))
	w.Sessions = builder
	w.Messages = messagesvc.New(w.Store, builder, rand.Reader, log.Named("message"))
	w.Groups = groupsvc.New(w.Store, rand.Reader, log.Named("group"))
	return w, nil
}

// Close releases the Redis connection, if any.
func (w *Wire) Close() error {
	if w.redis != nil {
		return w.redis.Close()
	}
	return nil
}
