package storage

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/dep2p/go-groupstack/pkg/lib/log"
)

var logger = log.Logger("core/storage")

// Engine BadgerDB 存储引擎
type Engine struct {
	db     *badger.DB
	config Config
	closed atomic.Bool

	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
}

// Open 打开存储引擎
func Open(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if cfg.InMemory() {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, err
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(cfg.SyncWrites)
	}
	opts = opts.WithLogger(nil).WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	logger.Debug("存储引擎已打开", "path", cfg.Path, "inMemory", cfg.InMemory())
	return &Engine{db: db, config: cfg, gcCancel: func() {}}, nil
}

// Start 启动后台垃圾回收（内存模式不需要）
func (e *Engine) Start() error {
	if e.closed.Load() {
		return ErrClosed
	}
	if e.config.InMemory() || e.config.GCInterval <= 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.gcCancel = cancel
	e.gcWg.Add(1)
	go func() {
		defer e.gcWg.Done()
		ticker := time.NewTicker(e.config.GCInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// 反复回收直到没有可回收的空间
				for e.db.RunValueLogGC(e.config.GCDiscardRatio) == nil {
				}
			}
		}
	}()
	return nil
}

// Close 关闭存储引擎
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.gcCancel()
	e.gcWg.Wait()
	return e.db.Close()
}

// Get 读取键值
func (e *Engine) Get(key []byte) ([]byte, error) {
	if err := e.check(key); err != nil {
		return nil, err
	}
	var value []byte
	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	return value, convertError(err)
}

// Put 写入键值
func (e *Engine) Put(key, value []byte) error {
	if err := e.check(key); err != nil {
		return err
	}
	return convertError(e.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	}))
}

// Delete 删除键
func (e *Engine) Delete(key []byte) error {
	if err := e.check(key); err != nil {
		return err
	}
	return convertError(e.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	}))
}

// Scan 按前缀遍历，fn 返回 false 时停止
func (e *Engine) Scan(prefix []byte, fn func(key, value []byte) bool) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return convertError(e.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if !fn(item.KeyCopy(nil), value) {
				return nil
			}
		}
		return nil
	}))
}

// Update 在一个读写事务内执行 fn
func (e *Engine) Update(fn func(txn *Txn) error) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return convertError(e.db.Update(func(t *badger.Txn) error {
		return fn(&Txn{txn: t})
	}))
}

func (e *Engine) check(key []byte) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if len(key) == 0 {
		return ErrEmptyKey
	}
	return nil
}

// Txn 读写事务
type Txn struct {
	txn *badger.Txn
}

// Get 事务内读取
func (t *Txn) Get(key []byte) ([]byte, error) {
	item, err := t.txn.Get(key)
	if err != nil {
		return nil, convertError(err)
	}
	return item.ValueCopy(nil)
}

// Set 事务内写入
func (t *Txn) Set(key, value []byte) error {
	return convertError(t.txn.Set(key, value))
}

// Delete 事务内删除
func (t *Txn) Delete(key []byte) error {
	return convertError(t.txn.Delete(key))
}

func convertError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return ErrNotFound
	case errors.Is(err, badger.ErrConflict):
		return ErrConflict
	case errors.Is(err, badger.ErrDBClosed):
		return ErrClosed
	default:
		return err
	}
}
