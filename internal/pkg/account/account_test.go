package account_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/account"
	log "github.com/sirupsen/logrus"
)

func TestMain(m *testing.M) {
	log.SetFormatter(&log.JSONFormatter{})
	os.Exit(m.Run())
}

func TestResolveUsesAccountNamespace(t *testing.T) {
	resolver := account.NewResolver("/data")

	paths, err := resolver.Resolve("alice")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if paths.Log != filepath.Join("/data", "alice_earnings.csv") {
		t.Errorf("Log = %q, want alice_earnings.csv below /data", paths.Log)
	}
	if paths.Model != filepath.Join("/data", "alice_predictor.model") {
		t.Errorf("Model = %q, want alice_predictor.model below /data", paths.Model)
	}
}

func TestDistinctAccountsNeverShareAPath(t *testing.T) {
	resolver := account.NewResolver("/data")
	accounts := []string{"a", "a_earnings", "a.csv", "a-b", "a_b", "bob", "b0b", "alice_predictor"}

	seen := map[string]string{}
	for _, acct := range accounts {
		paths, err := resolver.Resolve(acct)
		if err != nil {
			t.Fatalf("Resolve(%q) failed: %v", acct, err)
		}

		for _, p := range []string{paths.Log, paths.Model} {
			if other, ok := seen[p]; ok {
				t.Errorf("%q and %q both resolve to %s", acct, other, p)
			}
			seen[p] = acct
		}
	}
}

func TestRejectsUnsafeIdentifiers(t *testing.T) {
	unsafe := []string{"", "../etc", "a/b", `a\b`, "..", ".hidden", "Alice", "al ice", "al\x00ice", "bob:1"}

	resolver := account.NewResolver("/data")
	for _, acct := range unsafe {
		_, err := resolver.Resolve(acct)

		var invalid *account.InvalidAccountError
		if !errors.As(err, &invalid) {
			t.Errorf("Resolve(%q) returned %v, want InvalidAccountError", acct, err)
		}
	}
}

func TestRejectsOverlongIdentifier(t *testing.T) {
	long := make([]byte, 65)
	for i := range long {
		long[i] = 'a'
	}

	if err := account.Validate(string(long)); err == nil {
		t.Error("expected a 65 character identifier to be rejected")
	}
	if err := account.Validate(string(long[:64])); err != nil {
		t.Errorf("expected a 64 character identifier to be accepted: %v", err)
	}
}

func TestLocksSerializeSameKey(t *testing.T) {
	locks := account.NewLocks()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("alice")
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
}

func TestLocksDoNotBlockOtherKeys(t *testing.T) {
	locks := account.NewLocks()

	unlockAlice := locks.Lock("alice")
	defer unlockAlice()

	done := make(chan struct{})
	go func() {
		unlock := locks.Lock("bob")
		unlock()
		close(done)
	}()

	<-done
}
