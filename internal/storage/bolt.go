package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"resume-rag/internal/constants"
	"resume-rag/internal/index"

	"go.etcd.io/bbolt"
)

var bucketSnapshots = []byte(constants.SnapshotBucket)

// BoltSnapshotStore 把索引快照保存在本地 bbolt 文件中
type BoltSnapshotStore struct {
	db *bbolt.DB
}

// NewBoltSnapshotStore 打开（必要时创建）快照文件
func NewBoltSnapshotStore(path string) (*BoltSnapshotStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("创建快照目录失败: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("打开快照文件 %s 失败: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSnapshots)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltSnapshotStore{db: db}, nil
}

// SaveSnapshot 实现 index.SnapshotStore
func (s *BoltSnapshotStore) SaveSnapshot(ctx context.Context, snap *index.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("序列化快照失败: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Put([]byte(snap.Key), data)
	})
}

// LoadSnapshot 实现 index.SnapshotStore
func (s *BoltSnapshotStore) LoadSnapshot(ctx context.Context, key string) (*index.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var snap index.Snapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSnapshots).Get([]byte(key))
		if data == nil {
			return index.ErrSnapshotNotFound
		}
		return json.Unmarshal(data, &snap)
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// Close 关闭快照文件
func (s *BoltSnapshotStore) Close() error {
	return s.db.Close()
}
