package filestore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/umithardal/kafka-to-nexus/errors"
)

// Key prefixes for the badger keyspace. Groups are prefixes over which
// datasets/attributes/links nest; datasets are row-sequence keys; attributes
// are sibling metadata keys; links are redirect keys resolved by Finalize.
const (
	prefixGroup   = "g\x00"
	prefixDataset = "m\x00"
	prefixRow     = "r\x00"
	prefixAttr    = "a\x00"
	prefixLink    = "l\x00"
)

// BadgerBackend is the reference Backend implementation: an embedded
// LSM-tree keyspace standing in for the (out-of-scope) hierarchical file
// library.
type BadgerBackend struct {
	db *badger.DB

	mu    sync.Mutex
	seqs  map[string]int64  // dataset path -> next row index
	links map[string]string // link path -> target, pending resolution
}

// OpenBadgerBackend opens (creating if absent) a badger-backed file at dir,
// for reopening a job's file across a process restart.
func OpenBadgerBackend(dir string) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.WrapFatal(err, "BadgerBackend", "Open", "open badger store")
	}
	return &BadgerBackend{
		db:    db,
		seqs:  make(map[string]int64),
		links: make(map[string]string),
	}, nil
}

// CreateBadgerBackend creates a fresh badger-backed file at dir, failing if
// dir already exists. This is the no-overwrite guarantee a Job Controller
// requires at job start.
func CreateBadgerBackend(dir string) (*BadgerBackend, error) {
	if _, err := os.Stat(dir); err == nil {
		return nil, errors.WrapFatal(os.ErrExist, "BadgerBackend", "Create", "file already exists: "+dir)
	} else if !os.IsNotExist(err) {
		return nil, errors.WrapFatal(err, "BadgerBackend", "Create", "stat target path")
	}
	return OpenBadgerBackend(dir)
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// CreateGroup creates a group node at path. Idempotent.
func (b *BadgerBackend) CreateGroup(p string) error {
	p = normalizePath(p)
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixGroup+p), nil)
	})
}

// CreateDataset creates a dataset node at path with the given spec.
func (b *BadgerBackend) CreateDataset(p string, spec DatasetSpec) error {
	p = normalizePath(p)
	raw, err := json.Marshal(spec)
	if err != nil {
		return errors.WrapInvalid(err, "BadgerBackend", "CreateDataset", "marshal dataset spec")
	}
	b.mu.Lock()
	b.seqs[p] = 0
	b.mu.Unlock()
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixDataset+p), raw)
	})
}

// WriteAttribute attaches a scalar attribute to the node at path.
func (b *BadgerBackend) WriteAttribute(p, name string, value any) error {
	p = normalizePath(p)
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.WrapInvalid(err, "BadgerBackend", "WriteAttribute", "marshal attribute value")
	}
	key := prefixAttr + p + "\x00" + name
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), raw)
	})
}

// SetInitialValue writes a dataset's literal "values" field as row 0.
func (b *BadgerBackend) SetInitialValue(p string, value any) error {
	p = normalizePath(p)
	_, err := b.appendRow(p, value)
	return err
}

// AppendRow appends one row to the dataset at path.
func (b *BadgerBackend) AppendRow(p string, value any) (int64, error) {
	return b.appendRow(normalizePath(p), value)
}

func (b *BadgerBackend) appendRow(p string, value any) (int64, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return 0, errors.WrapInvalid(err, "BadgerBackend", "AppendRow", "marshal row value")
	}

	b.mu.Lock()
	idx := b.seqs[p]
	b.seqs[p] = idx + 1
	b.mu.Unlock()

	seqBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(seqBuf, uint64(idx))
	key := prefixRow + p + "\x00" + string(seqBuf)

	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), raw)
	})
	if err != nil {
		return 0, errors.WrapTransient(err, "BadgerBackend", "AppendRow", "write row")
	}
	return idx, nil
}

// CreateLink records a deferred link, resolved in Finalize.
func (b *BadgerBackend) CreateLink(p, target string) error {
	p = normalizePath(p)
	b.mu.Lock()
	b.links[p] = target
	b.mu.Unlock()
	return nil
}

// resolveTarget applies the "../"-relative-to-parent convention.
func resolveTarget(linkPath, target string) string {
	if strings.HasPrefix(target, "/") {
		return normalizePath(target)
	}
	parent := path.Dir(normalizePath(linkPath))
	return normalizePath(path.Join(parent, target))
}

// Finalize resolves every deferred link and flushes.
func (b *BadgerBackend) Finalize() error {
	b.mu.Lock()
	links := make(map[string]string, len(b.links))
	for k, v := range b.links {
		links[k] = v
	}
	b.mu.Unlock()

	return b.db.Update(func(txn *badger.Txn) error {
		for linkPath, target := range links {
			resolved := resolveTarget(linkPath, target)
			if err := txn.Set([]byte(prefixLink+normalizePath(linkPath)), []byte(resolved)); err != nil {
				return fmt.Errorf("resolve link %s -> %s: %w", linkPath, resolved, err)
			}
		}
		return nil
	})
}

// ResolveLink returns the resolved target for a link path, if any.
func (b *BadgerBackend) ResolveLink(p string) (string, bool) {
	p = normalizePath(p)
	var target string
	var found bool
	_ = b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixLink + p))
		if err != nil {
			return nil
		}
		return item.Value(func(val []byte) error {
			target = string(val)
			found = true
			return nil
		})
	})
	return target, found
}

// Close releases the underlying badger store.
func (b *BadgerBackend) Close() error {
	if err := b.db.Close(); err != nil {
		return errors.WrapTransient(err, "BadgerBackend", "Close", "close badger store")
	}
	return nil
}
