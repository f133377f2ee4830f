package store

// NewCheapFileStore is NewFileStore with a low scrypt cost.
func NewCheapFileStore(dir, passphrase string) *FileStore {
	return NewFileStore(dir, passphrase).withScrypt(scryptParams{N: 1 << 10, R: 8, P: 1})
}

// CheapRedisScrypt lowers the KDF cost of a RedisStore.
func CheapRedisScrypt(s *RedisStore) *RedisStore {
	return s.withScrypt(scryptParams{N: 1 << 10, R: 8, P: 1})
}
