package kvstore

import (
	"context"
	"encoding/json"
	"path"
	"sort"
	"strconv"

	bolt "go.etcd.io/bbolt"
)

var (
	valuesBucket = []byte("values")
	hashesBucket = []byte("hashes")
	setsBucket   = []byte("sets")
)

// BoltStore persists the cache to a BoltDB file. Single-node alternative
// to Redis for deployments that want durability without a separate store
// process. Hashes are stored as JSON blobs; each set is a nested bucket
// whose keys are the members.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) a BoltDB database at path.
func NewBoltStore(dbPath string) (*BoltStore, error) {
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, unavailable("open", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{valuesBucket, hashesBucket, setsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, unavailable("init", err)
	}
	return &BoltStore{db: db}, nil
}

func (b *BoltStore) GetRecord(ctx context.Context, key string) (map[string]string, error) {
	var fields map[string]string
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(hashesBucket).Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &fields)
	})
	if err == ErrNotFound {
		return nil, err
	}
	if err != nil {
		return nil, unavailable("get record", err)
	}
	return fields, nil
}

func (b *BoltStore) SetRecord(ctx context.Context, key string, fields map[string]string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(hashesBucket)
		merged := make(map[string]string)
		if raw := bkt.Get([]byte(key)); raw != nil {
			if err := json.Unmarshal(raw, &merged); err != nil {
				return err
			}
		}
		for k, v := range fields {
			merged[k] = v
		}
		raw, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		return bkt.Put([]byte(key), raw)
	})
	if err != nil {
		return unavailable("set record", err)
	}
	return nil
}

func (b *BoltStore) GetValue(ctx context.Context, key string) (string, error) {
	var value string
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(valuesBucket).Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		value = string(raw)
		return nil
	})
	if err == ErrNotFound {
		return "", err
	}
	if err != nil {
		return "", unavailable("get value", err)
	}
	return value, nil
}

func (b *BoltStore) SetValue(ctx context.Context, key, value string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(valuesBucket).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return unavailable("set value", err)
	}
	return nil
}

func (b *BoltStore) AddToSet(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		set, err := tx.Bucket(setsBucket).CreateBucketIfNotExists([]byte(key))
		if err != nil {
			return err
		}
		for _, member := range members {
			if err := set.Put([]byte(member), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return unavailable("add to set", err)
	}
	return nil
}

func (b *BoltStore) UnionStore(ctx context.Context, dest string, srcs ...string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		sets := tx.Bucket(setsBucket)
		union := make(map[string]struct{})
		for _, src := range srcs {
			set := sets.Bucket([]byte(src))
			if set == nil {
				continue
			}
			if err := set.ForEach(func(member, _ []byte) error {
				union[string(member)] = struct{}{}
				return nil
			}); err != nil {
				return err
			}
		}
		if sets.Bucket([]byte(dest)) != nil {
			if err := sets.DeleteBucket([]byte(dest)); err != nil {
				return err
			}
		}
		set, err := sets.CreateBucket([]byte(dest))
		if err != nil {
			return err
		}
		for member := range union {
			if err := set.Put([]byte(member), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return unavailable("union store", err)
	}
	return nil
}

func (b *BoltStore) Intersect(ctx context.Context, keys ...string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	var out []string
	err := b.db.View(func(tx *bolt.Tx) error {
		sets := tx.Bucket(setsBucket)
		first := sets.Bucket([]byte(keys[0]))
		if first == nil {
			return nil
		}
		return first.ForEach(func(member, _ []byte) error {
			for _, key := range keys[1:] {
				set := sets.Bucket([]byte(key))
				if set == nil || !setContains(set, member) {
					return nil
				}
			}
			out = append(out, string(member))
			return nil
		})
	})
	if err != nil {
		return nil, unavailable("intersect", err)
	}
	sort.Strings(out)
	return out, nil
}

func (b *BoltStore) Union(ctx context.Context, keys ...string) ([]string, error) {
	seen := make(map[string]struct{})
	err := b.db.View(func(tx *bolt.Tx) error {
		sets := tx.Bucket(setsBucket)
		for _, key := range keys {
			set := sets.Bucket([]byte(key))
			if set == nil {
				continue
			}
			if err := set.ForEach(func(member, _ []byte) error {
				seen[string(member)] = struct{}{}
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, unavailable("union", err)
	}
	out := make([]string, 0, len(seen))
	for member := range seen {
		out = append(out, member)
	}
	sort.Strings(out)
	return out, nil
}

func (b *BoltStore) Members(ctx context.Context, key string) ([]string, error) {
	var out []string
	err := b.db.View(func(tx *bolt.Tx) error {
		set := tx.Bucket(setsBucket).Bucket([]byte(key))
		if set == nil {
			return nil
		}
		return set.ForEach(func(member, _ []byte) error {
			out = append(out, string(member))
			return nil
		})
	})
	if err != nil {
		return nil, unavailable("members", err)
	}
	sort.Strings(out)
	return out, nil
}

func (b *BoltStore) Exists(ctx context.Context, key string) (bool, error) {
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		k := []byte(key)
		if tx.Bucket(valuesBucket).Get(k) != nil {
			found = true
		} else if tx.Bucket(hashesBucket).Get(k) != nil {
			found = true
		} else if tx.Bucket(setsBucket).Bucket(k) != nil {
			found = true
		}
		return nil
	})
	if err != nil {
		return false, unavailable("exists", err)
	}
	return found, nil
}

func (b *BoltStore) Increment(ctx context.Context, key string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(valuesBucket)
		n, _ := strconv.ParseInt(string(bkt.Get([]byte(key))), 10, 64)
		return bkt.Put([]byte(key), []byte(strconv.FormatInt(n+1, 10)))
	})
	if err != nil {
		return unavailable("increment", err)
	}
	return nil
}

func (b *BoltStore) Delete(ctx context.Context, keys ...string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		for _, key := range keys {
			k := []byte(key)
			if err := tx.Bucket(valuesBucket).Delete(k); err != nil {
				return err
			}
			if err := tx.Bucket(hashesBucket).Delete(k); err != nil {
				return err
			}
			sets := tx.Bucket(setsBucket)
			if sets.Bucket(k) != nil {
				if err := sets.DeleteBucket(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return unavailable("delete", err)
	}
	return nil
}

func (b *BoltStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	seen := make(map[string]struct{})
	collect := func(key []byte) {
		if ok, _ := path.Match(pattern, string(key)); ok {
			seen[string(key)] = struct{}{}
		}
	}
	err := b.db.View(func(tx *bolt.Tx) error {
		if err := tx.Bucket(valuesBucket).ForEach(func(k, _ []byte) error {
			collect(k)
			return nil
		}); err != nil {
			return err
		}
		if err := tx.Bucket(hashesBucket).ForEach(func(k, _ []byte) error {
			collect(k)
			return nil
		}); err != nil {
			return err
		}
		return tx.Bucket(setsBucket).ForEachBucket(func(k []byte) error {
			collect(k)
			return nil
		})
	})
	if err != nil {
		return nil, unavailable("keys", err)
	}
	out := make([]string, 0, len(seen))
	for key := range seen {
		out = append(out, key)
	}
	sort.Strings(out)
	return out, nil
}

func (b *BoltStore) Close() error {
	return b.db.Close()
}

// setContains distinguishes a member stored with a nil value from an
// absent member; bbolt's Get returns nil for both.
func setContains(set *bolt.Bucket, member []byte) bool {
	c := set.Cursor()
	k, _ := c.Seek(member)
	return string(k) == string(member)
}
