package tests

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/fetpipe/pkg/ports"
)

// LockerContractTest is a reusable test suite that verifies if an adapter complies with
// ports.DistributedLocker.
func LockerContractTest(t *testing.T, locker ports.DistributedLocker) {
	t.Helper()
	key := "/work/run-" + time.Now().Format("150405.000") + "/recon"

	t.Run("Lock_Exclusive", func(t *testing.T) {
		unlock, err := locker.Lock(context.Background(), key, time.Minute)
		if err != nil {
			t.Fatalf("unexpected error acquiring lock: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		defer cancel()
		if _, err := locker.Lock(ctx, key, time.Minute); err == nil {
			t.Fatal("expected second lock on the same key to block until the deadline")
		}

		if err := unlock(context.Background()); err != nil {
			t.Fatalf("unexpected error releasing lock: %v", err)
		}
	})

	t.Run("Lock_AfterRelease", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		unlock, err := locker.Lock(ctx, key, time.Minute)
		if err != nil {
			t.Fatalf("lock should be available after release: %v", err)
		}
		_ = unlock(context.Background())
	})

	t.Run("Lock_IndependentKeys", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		unlockA, err := locker.Lock(ctx, key+"-a", time.Minute)
		if err != nil {
			t.Fatalf("lock a: %v", err)
		}
		defer func() { _ = unlockA(context.Background()) }()

		unlockB, err := locker.Lock(ctx, key+"-b", time.Minute)
		if err != nil {
			t.Fatalf("lock b should not wait for a: %v", err)
		}
		_ = unlockB(context.Background())
	})
}
