package util

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func Test_powerOfTwo(t *testing.T) {
	assert.Equal(t, uint64(1), NextPowerOfTwo(0))
	assert.Equal(t, uint64(1), NextPowerOfTwo(1))
	assert.Equal(t, uint64(8), NextPowerOfTwo(5))
	assert.Equal(t, uint64(8), NextPowerOfTwo(8))
	assert.Equal(t, uint64(4), PrevPowerOfTwo(7))
	assert.Equal(t, uint64(8), PrevPowerOfTwo(8))
	assert.Equal(t, uint64(1<<26), PrevPowerOfTwo((1<<31-1)>>4))
	assert.True(t, IsPowerOfTwo(64))
	assert.False(t, IsPowerOfTwo(65))
}

func Test_atomicBitmap(t *testing.T) {
	bm := NewAtomicBitmap(4)
	assert.Equal(t, 128, bm.Len())
	assert.Equal(t, uint32(127), bm.Mask())
	assert.False(t, bm.Test(5))
	assert.False(t, bm.TestAndSet(5))
	assert.True(t, bm.TestAndSet(5))
	// bits wrap around the mask
	assert.True(t, bm.Test(5+128))
	bm.Set(100)
	assert.Equal(t, 2, bm.Count())
	bm.Reset()
	assert.Equal(t, 0, bm.Count())
	assert.Panics(t, func() {
		NewAtomicBitmap(3)
	})
}

func Test_atomicBitmapConcurrentSet(t *testing.T) {
	bm := NewAtomicBitmap(2)
	var eg errgroup.Group
	for g := 0; g < 8; g++ {
		eg.Go(func() error {
			for bit := uint32(g); bit < 64; bit += 8 {
				bm.Set(bit)
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	assert.Equal(t, 64, bm.Count())
}

func Test_reentrantLock(t *testing.T) {
	lock := NewReentrantLock()
	lock.Lock()
	lock.Lock()
	assert.True(t, lock.HeldByCurrent())
	assert.Equal(t, 2, lock.Depth())
	lock.Unlock()
	assert.Equal(t, 1, lock.Depth())

	acquired := make(chan struct{})
	go func() {
		lock.Lock()
		close(acquired)
		lock.Unlock()
	}()
	lock.Unlock()
	<-acquired
	assert.False(t, lock.HeldByCurrent())
	assert.Panics(t, func() {
		lock.Unlock()
	})
}

func Test_reentrantTryLock(t *testing.T) {
	lock := NewReentrantLock()
	require.True(t, lock.TryLock())
	require.True(t, lock.TryLock())
	assert.Equal(t, 2, lock.Depth())

	other := make(chan bool)
	go func() {
		other <- lock.TryLock()
	}()
	assert.False(t, <-other)

	lock.Unlock()
	lock.Unlock()
	go func() {
		ok := lock.TryLock()
		if ok {
			lock.Unlock()
		}
		other <- ok
	}()
	assert.True(t, <-other)
	assert.Equal(t, 0, lock.Depth())
}

func Test_reentrantLockExclusion(t *testing.T) {
	lock := NewReentrantLock()
	counter := 0
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				lock.Lock()
				counter++
				lock.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 8000, counter)
}

func Test_loadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rowdedup.toml")
	content := `
[dedup]
reducedCapacity = 4096
logicalCpus = 3

[debug]
checks = true
logLevel = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 4096, cfg.Dedup.ReducedCapacity)
	assert.Equal(t, 3, cfg.Dedup.LogicalCpus)
	assert.Equal(t, DefaultDistinctCapacity, cfg.Dedup.DistinctCapacity)
	assert.Equal(t, DefaultPoolPerCpu, cfg.Dedup.PoolPerCpu)
	assert.True(t, cfg.Debug.Checks)
	assert.Equal(t, "debug", cfg.Debug.LogLevel)

	_, err = LoadConfig(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[dedup\n"), 0644))
	_, err = LoadConfig(bad)
	assert.Error(t, err)
}

func Test_normalize(t *testing.T) {
	cfg := DedupConfig{WindowCapacity: 7, LogicalCpus: -1}
	cfg.Normalize()
	assert.Equal(t, 7, cfg.WindowCapacity)
	assert.Equal(t, DefaultConfig().Dedup.LogicalCpus, cfg.LogicalCpus)
	assert.Equal(t, DefaultCrossSourceCapacity, cfg.CrossSourceCapacity)
}

func Test_faults(t *testing.T) {
	assert.Nil(t, CheckFault(FaultScopeDedup, "f"))
	RegisterFault(FaultScopeDedup, "f", nil, func([]string) error { return nil })
	assert.Nil(t, CheckFault(FaultScopeDedup, "f"))

	OpenFaults(FaultScopeDedup)
	defer CloseFaults(FaultScopeDedup)
	called := []string(nil)
	RegisterFault(FaultScopeDedup, "f", []string{"x"}, func(args []string) error {
		called = args
		return nil
	})
	require.NoError(t, CheckFault(FaultScopeDedup, "f").Run())
	assert.Equal(t, []string{"x"}, called)
	assert.NoError(t, CheckFault(FaultScopeDedup, "g").Run())
	assert.Nil(t, CheckFault(-1, "f"))
	assert.False(t, FaultsEnabled(FaultScopeCount))
}

func Test_faultCallArgs(t *testing.T) {
	OpenFaults(FaultScopeDedup)
	defer CloseFaults(FaultScopeDedup)
	var got []string
	fa := RegisterFault(FaultScopeDedup, "args", []string{"base"}, func(args []string) error {
		got = args
		if len(args) > 1 && args[1] == "fail" {
			return errors.New("injected")
		}
		return nil
	})
	require.NotNil(t, fa)
	require.NoError(t, InjectFault(FaultScopeDedup, "args", "7", "3"))
	assert.Equal(t, []string{"base", "7", "3"}, got)
	assert.Error(t, InjectFault(FaultScopeDedup, "args", "fail"))
	assert.Equal(t, int64(2), fa.Hits())
	// registered args are not modified by calls
	assert.Equal(t, []string{"base"}, fa.Args)
	assert.NoError(t, InjectFault(FaultScopeDedup, "missing", "1"))

	CloseFaults(FaultScopeDedup)
	assert.NoError(t, InjectFault(FaultScopeDedup, "args", "fail"))
	assert.Equal(t, int64(2), fa.Hits())
	assert.Nil(t, RegisterFault(FaultScopeDedup, "args", nil, nil))
	assert.Equal(t, int64(0), (*FaultAction)(nil).Hits())
}

func Test_logger(t *testing.T) {
	logger, err := NewLogger("debug")
	require.NoError(t, err)
	SetLogger(logger)
	defer SetLogger(zap.NewNop())
	Debug("debug message", zap.Int("n", 1))
	Info("info message")
	_, err = NewLogger("loud")
	assert.Error(t, err)
}

func Test_debugAssert(t *testing.T) {
	assert.NotPanics(t, func() {
		DebugAssert(false, "ignored %d", 1)
	})
	EnableDebugChecks(true)
	defer EnableDebugChecks(false)
	assert.PanicsWithValue(t, "illegal argument: bad 1", func() {
		DebugAssert(false, "bad %d", 1)
	})
}

func Test_sliceHelpers(t *testing.T) {
	a := []int{1, 2, 3, 4}
	assert.Equal(t, 2, FindIf(a, func(v int) bool { return v > 2 }))
	assert.Equal(t, -1, FindIf(a, func(v int) bool { return v > 4 }))

	backing := a
	a = Erase(a, 1)
	assert.Equal(t, []int{1, 4, 3}, a)
	assert.Equal(t, 0, backing[3])
	assert.Equal(t, []int{1, 4, 3}, Erase(a, 3))
	assert.Empty(t, Erase([]int{7}, 0))
}

func Test_checksum(t *testing.T) {
	assert.Equal(t, uint32(0), ChecksumU32(0))
	// nearby inputs differ in the top bits
	assert.NotEqual(t, ChecksumU32(1)>>26, ChecksumU32(2)>>26)
	assert.NotEqual(t, ChecksumU64(1), ChecksumU64(2))
}
