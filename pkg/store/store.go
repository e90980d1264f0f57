// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package store is the document store of ratings and their decay bookkeeping, kept in redis.
// Documents are JSON values addressed by collection and id. Writes that depend on reads go
// through RunTransaction, which retries when a document it read was changed concurrently.
package store

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

var (
	ErrNotFound   = errors.New("document not found")
	ErrTxConflict = errors.New("transaction kept conflicting with concurrent writes")
)

type Options = redis.Options

type Store struct {
	Namespace  string
	Client     *redis.Client
	MaxRetries int
}

func NewRedisStore(options Options, namespace string, maxRetries int) *Store {
	return New(redis.NewClient(&options), namespace, maxRetries)
}

func New(client *redis.Client, namespace string, maxRetries int) *Store {
	return &Store{
		Namespace:  namespace,
		Client:     client,
		MaxRetries: maxRetries,
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return eris.Wrap(s.Client.Ping(ctx).Err(), "ping redis")
}

func (s *Store) Close() error {
	err := s.Client.Close()
	if err != nil {
		return eris.Wrap(err, "")
	}
	return nil
}

func (s *Store) key(collection, id string) string {
	return s.Namespace + ":" + collection + ":" + id
}

// Get decodes the document into doc. It returns ErrNotFound when there is no such document.
func (s *Store) Get(ctx context.Context, collection, id string, doc interface{}) error {
	return get(ctx, s.Client, s.key(collection, id), doc)
}

func (s *Store) Set(ctx context.Context, collection, id string, doc interface{}) error {
	bz, err := json.Marshal(doc)
	if err != nil {
		return eris.Wrapf(err, "encode %s/%s", collection, id)
	}
	return eris.Wrap(s.Client.Set(ctx, s.key(collection, id), bz, 0).Err(), "")
}

// StreamQuery calls fn with every document of the collection whose id starts with idPrefix,
// in id order. It stops at the first error fn returns.
func (s *Store) StreamQuery(ctx context.Context, collection, idPrefix string, fn func(id string, raw []byte) error) error {
	prefix := s.key(collection, "")
	var keys []string
	iter := s.Client.Scan(ctx, 0, prefix+idPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return eris.Wrapf(err, "scan %s", collection)
	}
	sort.Strings(keys)

	for _, key := range keys {
		bz, err := s.Client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			// deleted since the scan
			continue
		}
		if err != nil {
			return eris.Wrapf(err, "get %s", key)
		}
		if err := fn(strings.TrimPrefix(key, prefix), bz); err != nil {
			return err
		}
	}
	return nil
}

// Tx reads documents under watch and buffers writes until the transaction commits.
type Tx struct {
	ctx    context.Context
	store  *Store
	tx     *redis.Tx
	order  []string
	writes map[string][]byte
}

// Get watches the document and decodes it into doc. It returns false when there is no such document.
func (t *Tx) Get(collection, id string, doc interface{}) (bool, error) {
	key := t.store.key(collection, id)
	if bz, ok := t.writes[key]; ok {
		return true, eris.Wrap(json.Unmarshal(bz, doc), "")
	}
	if err := t.tx.Watch(t.ctx, key).Err(); err != nil {
		return false, eris.Wrapf(err, "watch %s", key)
	}
	err := get(t.ctx, t.tx, key, doc)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (t *Tx) Set(collection, id string, doc interface{}) error {
	bz, err := json.Marshal(doc)
	if err != nil {
		return eris.Wrapf(err, "encode %s/%s", collection, id)
	}
	key := t.store.key(collection, id)
	if _, ok := t.writes[key]; !ok {
		t.order = append(t.order, key)
	}
	t.writes[key] = bz
	return nil
}

// RunTransaction runs fn and commits its writes only if none of the documents it read changed
// in the meantime. On conflict fn runs again with fresh reads, up to MaxRetries times, after
// which ErrTxConflict is returned. An error returned by fn aborts without writing.
func (s *Store) RunTransaction(ctx context.Context, fn func(tx *Tx) error) error {
	for attempt := 0; attempt <= s.MaxRetries; attempt++ {
		err := s.Client.Watch(ctx, func(rtx *redis.Tx) error {
			tx := &Tx{ctx: ctx, store: s, tx: rtx, writes: make(map[string][]byte)}
			if err := fn(tx); err != nil {
				return err
			}
			if len(tx.order) == 0 {
				return nil
			}
			_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, key := range tx.order {
					pipe.Set(ctx, key, tx.writes[key], 0)
				}
				return nil
			})
			return err
		})
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrTxConflict
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func get(ctx context.Context, client getter, key string, doc interface{}) error {
	bz, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return eris.Wrapf(err, "get %s", key)
	}
	return eris.Wrapf(json.Unmarshal(bz, doc), "decode %s", key)
}
