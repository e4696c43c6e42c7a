package lyrics

import (
	"encoding/json"
	"time"

	"go.etcd.io/bbolt"
)

var cacheBucket = []byte("lyrics")

// Cache is a local bbolt store of formatted lyrics keyed by page URL.
// Entries expire after the configured TTL.
type Cache struct {
	db  *bbolt.DB
	ttl time.Duration
}

type cacheEntry struct {
	Text     string    `json:"text"`
	StoredAt time.Time `json:"stored_at"`
}

// OpenCache opens (or creates) the cache database at path. ttl <= 0 keeps
// entries forever.
func OpenCache(path string, ttl time.Duration) (*Cache, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(cacheBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Cache{db: db, ttl: ttl}, nil
}

// Get returns the cached lyrics for url, if present and fresh.
func (c *Cache) Get(url string) (string, bool) {
	var entry cacheEntry
	found := false

	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(cacheBucket).Get([]byte(url))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &entry); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return "", false
	}
	if c.ttl > 0 && time.Since(entry.StoredAt) > c.ttl {
		return "", false
	}
	return entry.Text, true
}

// Put stores lyrics for url.
func (c *Cache) Put(url, text string) error {
	data, err := json.Marshal(cacheEntry{Text: text, StoredAt: time.Now()})
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(cacheBucket).Put([]byte(url), data)
	})
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}
