// Package storage is the local session cache. It keeps what is needed to
// pick up where the last run of the client stopped; the backend stays the
// record of every article and run.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	sessionBucket = []byte("session")
	queriesBucket = []byte("queries")

	sessionKey = []byte("current")
	jobKey     = []byte("last_job")
)

// MaxQueries bounds the recent query list.
const MaxQueries = 20

// MemoryPath opens a throwaway cache that is removed on Close.
const MemoryPath = ":memory:"

type Store struct {
	db   *bolt.DB
	temp string
}

// NewStore opens or creates the cache at dbPath. A zero timeout waits one
// second for the file lock.
func NewStore(dbPath string, timeout time.Duration) (*Store, error) {
	if timeout <= 0 {
		timeout = time.Second
	}

	var temp string
	if dbPath == "" || dbPath == MemoryPath {
		f, err := os.CreateTemp("", "newsroom-session-*.db")
		if err != nil {
			return nil, fmt.Errorf("creating temporary database: %w", err)
		}
		temp = f.Name()
		_ = f.Close()
		dbPath = temp
	}

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		if temp != "" {
			_ = os.Remove(temp)
		}
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{sessionBucket, queriesBucket} {
			if _, createErr := tx.CreateBucketIfNotExists(bucket); createErr != nil {
				return createErr
			}
		}
		return nil
	})

	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Store{db: db, temp: temp}, nil
}

func (s *Store) Close() error {
	err := s.db.Close()
	if s.temp != "" {
		_ = os.Remove(s.temp)
	}
	return err
}

func (s *Store) putJSON(bucket, key []byte, v any) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return tx.Bucket(bucket).Put(key, data)
	})
}

func (s *Store) getJSON(bucket, key []byte, v any) (bool, error) {
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get(key)
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, v)
	})
	return found, err
}

func (s *Store) SaveSession(sess Session) error {
	if sess.SavedAt.IsZero() {
		sess.SavedAt = time.Now()
	}
	return s.putJSON(sessionBucket, sessionKey, sess)
}

// LoadSession returns the saved session. ok is false when none was saved.
func (s *Store) LoadSession() (Session, bool, error) {
	var sess Session
	ok, err := s.getJSON(sessionBucket, sessionKey, &sess)
	if err != nil {
		return Session{}, false, fmt.Errorf("reading session: %w", err)
	}
	return sess, ok, nil
}

func (s *Store) ClearSession() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionBucket).Delete(sessionKey)
	})
}

func (s *Store) SaveJobInput(in JobInput) error {
	if in.SubmittedAt.IsZero() {
		in.SubmittedAt = time.Now()
	}
	return s.putJSON(sessionBucket, jobKey, in)
}

func (s *Store) LastJobInput() (JobInput, bool, error) {
	var in JobInput
	ok, err := s.getJSON(sessionBucket, jobKey, &in)
	if err != nil {
		return JobInput{}, false, fmt.Errorf("reading last job: %w", err)
	}
	return in, ok, nil
}

func seqKey(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

// AddQuery records q as the most recent query. An older entry with the same
// text and scope is replaced, and the list is trimmed to MaxQueries.
func (s *Store) AddQuery(q Query) error {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return nil
	}
	if q.RanAt.IsZero() {
		q.RanAt = time.Now()
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(queriesBucket)

		var keys, stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var old Query
			if err := json.Unmarshal(v, &old); err == nil &&
				strings.EqualFold(old.Text, q.Text) && old.Scope == q.Scope {
				stale = append(stale, append([]byte(nil), k...))
				return nil
			}
			keys = append(keys, append([]byte(nil), k...))
			return nil
		})
		if err != nil {
			return err
		}
		// keys are in insertion order; keep room for the new entry
		if excess := len(keys) + 1 - MaxQueries; excess > 0 {
			stale = append(stale, keys[:excess]...)
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(q)
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), data)
	})
}

// RecentQueries returns up to limit queries, newest first. A limit <= 0
// returns all of them.
func (s *Store) RecentQueries(limit int) ([]Query, error) {
	var out []Query
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(queriesBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var q Query
			if err := json.Unmarshal(v, &q); err != nil {
				continue
			}
			out = append(out, q)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// Reset removes the session and every recorded query.
func (s *Store) Reset() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{sessionBucket, queriesBucket} {
			if err := tx.DeleteBucket(bucket); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(bucket); err != nil {
				return err
			}
		}
		return nil
	})
}
