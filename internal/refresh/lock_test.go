package refresh

import (
	"context"
	"errors"
	"testing"
	"time"
)

type memStore struct {
	values map[string]string
	ttls   map[string]time.Duration
	setErr error
	delErr error
}

func newMemStore() *memStore {
	return &memStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.setErr != nil {
		return false, m.setErr
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memStore) DelIfEqual(_ context.Context, key, value string) (bool, error) {
	if m.delErr != nil {
		return false, m.delErr
	}
	if m.values[key] != value {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "sp:lock:refresh", time.Minute); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := NewRedisLock(newMemStore(), "", time.Minute); err == nil {
		t.Fatalf("expected error for empty key")
	}
	store := newMemStore()
	lock, err := NewRedisLock(store, "sp:lock:refresh", 0)
	if err != nil {
		t.Fatalf("construct lock: %v", err)
	}
	if ok, _ := lock.Acquire(context.Background()); !ok {
		t.Fatalf("expected acquire")
	}
	if store.ttls["sp:lock:refresh"] != defaultLockTTL {
		t.Fatalf("expected default ttl, got %s", store.ttls["sp:lock:refresh"])
	}
}

func TestRedisLockExclusiveAndRelease(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	first, _ := NewRedisLock(store, "sp:lock:refresh", time.Minute)
	second, _ := NewRedisLock(store, "sp:lock:refresh", time.Minute)

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if ok, err := second.Acquire(ctx); err != nil || ok {
		t.Fatalf("second acquire should fail: ok=%v err=%v", ok, err)
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	if _, ok := store.values["sp:lock:refresh"]; !ok {
		t.Fatalf("non-owner release removed the lock")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("owner release: %v", err)
	}
	if _, ok := store.values["sp:lock:refresh"]; ok {
		t.Fatalf("owner release kept the lock")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("double release: %v", err)
	}
}

func TestRedisLockReleaseToleratesExpiredKey(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	lock, _ := NewRedisLock(store, "sp:lock:refresh", time.Minute)
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatalf("expected acquire")
	}
	delete(store.values, "sp:lock:refresh")
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release after expiry: %v", err)
	}
}

func TestRedisLockReleaseKeepsSuccessorLock(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	lock, _ := NewRedisLock(store, "sp:lock:refresh", time.Minute)
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatalf("expected acquire")
	}
	store.values["sp:lock:refresh"] = "successor"
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.values["sp:lock:refresh"] != "successor" {
		t.Fatalf("expired owner removed the successor's lock")
	}
}

func TestRedisLockReleaseError(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	lock, _ := NewRedisLock(store, "sp:lock:refresh", time.Minute)
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatalf("expected acquire")
	}
	store.delErr = errors.New("conn reset")
	if err := lock.Release(ctx); err == nil {
		t.Fatalf("expected release error")
	}
}

func TestRedisLockAcquireError(t *testing.T) {
	store := newMemStore()
	store.setErr = errors.New("conn refused")
	lock, _ := NewRedisLock(store, "sp:lock:refresh", time.Minute)
	if _, err := lock.Acquire(context.Background()); err == nil {
		t.Fatalf("expected setnx error")
	}
}

func TestLocalLock(t *testing.T) {
	ctx := context.Background()
	var lock LocalLock
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatalf("expected first acquire")
	}
	if ok, _ := lock.Acquire(ctx); ok {
		t.Fatalf("expected second acquire to fail")
	}
	_ = lock.Release(ctx)
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatalf("expected acquire after release")
	}
}
