package objectstore

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	ldb_opt "github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB stores keys in a single LevelDB database.
type LevelDB struct {
	// guards the Has+Put pair in Create
	mu sync.Mutex
	db *leveldb.DB
}

var syncWrite = &ldb_opt.WriteOptions{Sync: true}

// NewLevelDB opens (or creates) a LevelDB database at path.
func NewLevelDB(path string) (*LevelDB, error) {
	if path == "" {
		return nil, errors.New("leveldb: path is required")
	}
	db, err := leveldb.OpenFile(path, &ldb_opt.Options{ErrorIfMissing: false})
	if err != nil {
		return nil, fmt.Errorf("leveldb: open %s: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Read(key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	b, err := l.db.Get([]byte(key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("leveldb: read %s: %w", key, err)
	}
	return b, nil
}

func (l *LevelDB) Create(key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	ok, err := l.db.Has([]byte(key), nil)
	if err != nil {
		return fmt.Errorf("leveldb: create %s: %w", key, err)
	}
	if ok {
		return ErrExists
	}
	if err := l.db.Put([]byte(key), data, syncWrite); err != nil {
		return fmt.Errorf("leveldb: create %s: %w", key, err)
	}
	return nil
}

func (l *LevelDB) Replace(key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.db.Put([]byte(key), data, syncWrite); err != nil {
		return fmt.Errorf("leveldb: replace %s: %w", key, err)
	}
	return nil
}

func (l *LevelDB) List(dir string) ([]string, error) {
	if err := validateKey(dir); err != nil {
		return nil, err
	}
	prefix := dir + "/"
	iter := l.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	keys := []string{}
	for iter.Next() {
		key := string(iter.Key())
		if strings.Contains(key[len(prefix):], "/") {
			continue
		}
		keys = append(keys, key)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("leveldb: list %s: %w", dir, err)
	}
	return keys, nil
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}
