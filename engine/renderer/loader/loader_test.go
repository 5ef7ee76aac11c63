package loader

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thefork190/TheFork-sub000/engine/renderer/gpu"
	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
	"github.com/thefork190/TheFork-sub000/engine/renderer/software"
)

func newTestLoader(t *testing.T, deviceConfig software.Config, cfg Config, fsys fs.FS) (*ResourceLoader, *software.Device) {
	t.Helper()
	device := software.NewDevice(deviceConfig)
	l, err := New([]gpu.Device{device}, fsys, &cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		l.Shutdown()
		assert.Empty(t, device.ValidationErrors())
		assert.NoError(t, device.Destroy())
	})
	return l, device
}

func pattern(n int, seed byte) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = seed + byte(i*7+i/251)
	}
	return data
}

func newGPUBuffer(t *testing.T, l *ResourceLoader, size uint64) gpu.Buffer {
	t.Helper()
	desc := &BufferLoadDesc{Desc: &metadata.BufferDesc{
		Size:        size,
		MemoryUsage: metadata.MemoryUsageGPUOnly,
		Descriptors: metadata.DescriptorTypeVertexBuffer,
	}}
	require.NoError(t, l.AddResource(desc, nil))
	require.NotNil(t, desc.Buffer)
	return desc.Buffer
}

// readBack copies src into a fresh CPU readable buffer through the loader.
func readBack(t *testing.T, l *ResourceLoader, src gpu.Buffer) []byte {
	t.Helper()
	desc := &BufferLoadDesc{
		Desc: &metadata.BufferDesc{
			Name:        "readback",
			Size:        src.Size(),
			MemoryUsage: metadata.MemoryUsageGPUToCPU,
			NodeIndex:   src.NodeIndex(),
		},
		SrcBuffer: src,
	}
	var token SyncToken
	require.NoError(t, l.AddResource(desc, &token))
	l.WaitForToken(token)
	require.NoError(t, l.TokenError(token))
	data := append([]byte(nil), desc.Buffer.Mapped()...)
	require.NoError(t, l.RemoveResource(desc.Buffer))
	return data
}

func recordingSets(l *ResourceLoader) int {
	count := 0
	for _, n := range l.nodes {
		for _, e := range []*copyEngine{n.copyEngine, n.uploadEngine} {
			for _, set := range e.sets {
				if set.recording {
					count++
				}
			}
		}
	}
	return count
}

func TestNewRejectsMisorderedDevices(t *testing.T) {
	a := software.NewDevice(software.Config{NodeIndex: 1})
	b := software.NewDevice(software.Config{NodeIndex: 0})
	t.Cleanup(func() {
		_ = a.Destroy()
		_ = b.Destroy()
	})
	_, err := New([]gpu.Device{a, b}, nil, nil)
	assert.ErrorIs(t, err, ErrNodeMismatch)

	_, err = New(nil, nil, nil)
	assert.ErrorIs(t, err, gpu.ErrInvalidDesc)
}

func TestTokensAreMonotonic(t *testing.T) {
	l, device := newTestLoader(t, software.Config{}, DefaultConfig(), nil)
	const producers, perProducer = 4, 50
	dst := newGPUBuffer(t, l, producers*64)

	var violations atomic.Int32
	stop, stopped := make(chan struct{}), make(chan struct{})
	go func() {
		defer close(stopped)
		for {
			select {
			case <-stop:
				return
			default:
			}
			c := l.completed.Load()
			s := l.submitted.Load()
			i := l.issued.Load()
			if c > s || s > i {
				violations.Add(1)
			}
		}
	}()

	tokens := make([][]SyncToken, producers)
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				var token SyncToken
				err := l.AddResource(&BufferLoadDesc{Buffer: dst, Data: pattern(64, byte(i)), DstOffset: uint64(p * 64)}, &token)
				assert.NoError(t, err)
				tokens[p] = append(tokens[p], token)
			}
		}()
	}
	wg.Wait()
	l.WaitForAllResourceLoads()
	close(stop)
	<-stopped

	assert.Zero(t, violations.Load())
	seen := make(map[SyncToken]bool)
	for _, list := range tokens {
		for i, token := range list {
			if i > 0 {
				assert.Greater(t, token, list[i-1])
			}
			assert.False(t, seen[token], "token %d issued twice", token)
			seen[token] = true
			assert.True(t, l.IsTokenCompleted(token))
		}
	}
	assert.Len(t, seen, producers*perProducer)
	assert.Equal(t, SyncToken(producers*perProducer), l.LastTokenCompleted())
	assert.True(t, l.AllResourceLoadsCompleted())

	contents := dst.(*software.Buffer).Contents()
	for p := 0; p < producers; p++ {
		assert.Equal(t, pattern(64, perProducer-1), contents[p*64:(p+1)*64])
	}
	assert.NotZero(t, device.Stats().Submissions[metadata.QueueTypeTransfer])
}

func TestZeroTokenIsCompleted(t *testing.T) {
	l, _ := newTestLoader(t, software.Config{}, DefaultConfig(), nil)
	assert.True(t, l.IsTokenCompleted(0))
	assert.True(t, l.IsTokenSubmitted(0))
	assert.True(t, l.AllResourceLoadsCompleted())
	l.WaitForToken(0)
	l.WaitForAllResourceLoads()
}

func TestWaitOnUnissuedTokenReturns(t *testing.T) {
	l, _ := newTestLoader(t, software.Config{}, DefaultConfig(), nil)
	dst := newGPUBuffer(t, l, 256)
	var token SyncToken
	require.NoError(t, l.AddResource(&BufferLoadDesc{Buffer: dst, Data: pattern(256, 1)}, &token))

	done := make(chan struct{})
	go func() {
		l.WaitForToken(token + 100)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("waiting on a token that was never issued did not return")
	}
	assert.True(t, l.IsTokenCompleted(token))
}

func TestSubmittedPrecedesCompleted(t *testing.T) {
	l, _ := newTestLoader(t, software.Config{ExecutionDelay: 20 * time.Millisecond}, DefaultConfig(), nil)
	dst := newGPUBuffer(t, l, 1024)
	var token SyncToken
	require.NoError(t, l.AddResource(&BufferLoadDesc{Buffer: dst, Data: pattern(1024, 3)}, &token))

	l.WaitForTokenSubmitted(token)
	assert.True(t, l.IsTokenSubmitted(token))
	l.WaitForToken(token)
	assert.True(t, l.IsTokenCompleted(token))
	assert.True(t, l.IsTokenSubmitted(token))
	assert.Equal(t, pattern(1024, 3), dst.(*software.Buffer).Contents())
}

func TestWaitForAllResourceLoads(t *testing.T) {
	l, _ := newTestLoader(t, software.Config{ExecutionDelay: 10 * time.Millisecond}, DefaultConfig(), nil)
	buffers := make([]gpu.Buffer, 3)
	for i := range buffers {
		buffers[i] = newGPUBuffer(t, l, 512)
		require.NoError(t, l.AddResource(&BufferLoadDesc{Buffer: buffers[i], Data: pattern(512, byte(i))}, nil))
	}
	l.WaitForAllResourceLoads()
	assert.True(t, l.AllResourceLoadsCompleted())
	for i, buf := range buffers {
		assert.Equal(t, pattern(512, byte(i)), buf.(*software.Buffer).Contents())
	}
}

func TestLaterRequestsLandLast(t *testing.T) {
	l, _ := newTestLoader(t, software.Config{ExecutionDelay: 5 * time.Millisecond}, DefaultConfig(), nil)
	dst := newGPUBuffer(t, l, 2048)

	var a, b SyncToken
	require.NoError(t, l.AddResource(&BufferLoadDesc{Buffer: dst, Data: pattern(2048, 10)}, &a))
	require.NoError(t, l.AddResource(&BufferLoadDesc{Buffer: dst, Data: pattern(2048, 20)}, &b))
	require.Less(t, a, b)

	l.WaitForToken(a)
	l.WaitForToken(b)
	assert.Equal(t, pattern(2048, 20), dst.(*software.Buffer).Contents())
}

func TestSingleThreadedCompletesInline(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SingleThreaded = true
	l, _ := newTestLoader(t, software.Config{}, cfg, nil)
	dst := newGPUBuffer(t, l, 4096)

	for i := 0; i < 5; i++ {
		var token SyncToken
		require.NoError(t, l.AddResource(&BufferLoadDesc{Buffer: dst, Data: pattern(4096, byte(i))}, &token))
		assert.True(t, l.IsTokenCompleted(token))
		assert.Zero(t, recordingSets(l))
		assert.Equal(t, pattern(4096, byte(i)), dst.(*software.Buffer).Contents())
	}
	assert.Equal(t, pattern(4096, 4), readBack(t, l, dst))
}

func TestStagingOverflowUsesTemporaryBuffer(t *testing.T) {
	cfg := Config{BufferSize: 64 << 10, BufferCount: 2}
	l, device := newTestLoader(t, software.Config{}, cfg, nil)
	dst := newGPUBuffer(t, l, 1<<20)

	var token SyncToken
	data := pattern(1<<20, 42)
	require.NoError(t, l.AddResource(&BufferLoadDesc{Buffer: dst, Data: data}, &token))
	l.WaitForToken(token)

	assert.Equal(t, data, dst.(*software.Buffer).Contents())
	stats := l.Stats()
	assert.Equal(t, uint64(1), stats.TempBuffersAllocated)
	assert.Equal(t, uint64(1), stats.TempBuffersReleased)
	assert.Equal(t, uint64(1), device.Stats().BuffersDestroyed)

	l.Shutdown()
	assert.Equal(t, uint64(1), l.Stats().TempBuffersReleased)
}

func TestFullStagingBufferDefersRequests(t *testing.T) {
	for _, flushOnOverflow := range []bool{false, true} {
		t.Run(map[bool]string{false: "retry", true: "flush"}[flushOnOverflow], func(t *testing.T) {
			cfg := Config{BufferSize: 4096, BufferCount: 2, FlushOnOverflow: flushOnOverflow}
			l, _ := newTestLoader(t, software.Config{ExecutionDelay: time.Millisecond}, cfg, nil)
			const parts, partSize = 6, 3000
			dst := newGPUBuffer(t, l, parts*partSize)

			var tokens [parts]SyncToken
			for i := range tokens {
				require.NoError(t, l.AddResource(&BufferLoadDesc{
					Buffer:    dst,
					Data:      pattern(partSize, byte(i*13)),
					DstOffset: uint64(i * partSize),
				}, &tokens[i]))
			}
			l.WaitForToken(tokens[0])
			for i := 1; i < parts; i++ {
				l.WaitForToken(tokens[i])
				assert.True(t, l.IsTokenCompleted(tokens[i-1]))
			}

			contents := dst.(*software.Buffer).Contents()
			for i := 0; i < parts; i++ {
				assert.Equal(t, pattern(partSize, byte(i*13)), contents[i*partSize:(i+1)*partSize], "part %d", i)
			}
			assert.Zero(t, l.Stats().InvalidRequests)
			assert.Zero(t, l.Stats().TempBuffersAllocated)
		})
	}
}

func TestShutdownDrainsAndRejects(t *testing.T) {
	l, _ := newTestLoader(t, software.Config{ExecutionDelay: 5 * time.Millisecond}, DefaultConfig(), nil)
	dst := newGPUBuffer(t, l, 8192)
	var token SyncToken
	require.NoError(t, l.AddResource(&BufferLoadDesc{Buffer: dst, Data: pattern(8192, 9)}, &token))

	l.Shutdown()
	assert.True(t, l.IsTokenCompleted(token))
	assert.Equal(t, pattern(8192, 9), dst.(*software.Buffer).Contents())

	err := l.AddResource(&BufferLoadDesc{Buffer: dst, Data: pattern(16, 1)}, &token)
	assert.ErrorIs(t, err, ErrLoaderShutdown)
	l.Shutdown()
}

func TestUpdatesRejectedAfterShutdown(t *testing.T) {
	l, _ := newTestLoader(t, software.Config{}, DefaultConfig(), nil)
	buf := newGPUBuffer(t, l, 256)
	var tex gpu.Texture
	require.NoError(t, l.AddResource(&TextureLoadDesc{Texture: &tex, Desc: &metadata.TextureDesc{
		Width: 4, Height: 4, Format: metadata.TextureFormatRGBA8,
	}}, nil))
	l.Shutdown()

	assert.ErrorIs(t, l.BeginUpdateResource(&BufferUpdateDesc{Buffer: buf}), ErrLoaderShutdown)
	assert.ErrorIs(t, l.BeginUpdateResource(&TextureUpdateDesc{Texture: tex}), ErrLoaderShutdown)
	_, err := l.FlushResourceUpdates(0)
	assert.ErrorIs(t, err, ErrLoaderShutdown)
	assert.Nil(t, l.LastSemaphoreSubmitted(0))
	assert.Equal(t, uint32(1), l.NodeCount())
	require.NoError(t, l.RemoveResource(tex))
	require.NoError(t, l.RemoveResource(buf))
}

func TestUpdatesDuringShutdown(t *testing.T) {
	l, device := newTestLoader(t, software.Config{}, DefaultConfig(), nil)
	buf := newGPUBuffer(t, l, 64)

	var (
		wg      sync.WaitGroup
		updates atomic.Int64
		last    atomic.Int64
		stopErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			update := &BufferUpdateDesc{Buffer: buf}
			if err := l.BeginUpdateResource(update); err != nil {
				stopErr = err
				return
			}
			copy(update.MappedData, pattern(64, byte(i)))
			if err := l.EndUpdateResource(update); err != nil {
				stopErr = err
				return
			}
			last.Store(int64(i))
			updates.Add(1)
			_ = l.LastSemaphoreSubmitted(0)
		}
	}()

	require.Eventually(t, func() bool { return updates.Load() > 10 }, 5*time.Second, time.Millisecond)
	l.Shutdown()
	wg.Wait()

	assert.ErrorIs(t, stopErr, ErrLoaderShutdown)
	assert.Equal(t, pattern(64, byte(last.Load())), buf.(*software.Buffer).Contents())
	assert.Empty(t, device.ValidationErrors())
	require.NoError(t, buf.Destroy())
}

func TestFailedSetWaitPublishesNothing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SingleThreaded = true
	l, _ := newTestLoader(t, software.Config{}, cfg, nil)

	// a set still marked recording cannot be recycled
	set := l.nextSet
	l.tokenState[set] = 5
	l.nodes[0].copyEngine.sets[set].recording = true
	l.tickMutex.Lock()
	l.tick()
	l.tickMutex.Unlock()
	assert.Zero(t, l.LastTokenCompleted())
	assert.False(t, l.nodes[0].copyEngine.sets[set].recording)

	dst := newGPUBuffer(t, l, 64)
	var token SyncToken
	require.NoError(t, l.AddResource(&BufferLoadDesc{Buffer: dst, Data: pattern(64, 3)}, &token))
	l.WaitForToken(token)
	assert.Equal(t, token, l.LastTokenCompleted())
	assert.Equal(t, pattern(64, 3), dst.(*software.Buffer).Contents())
	require.NoError(t, l.RemoveResource(dst))
}

func TestUnknownResources(t *testing.T) {
	l, _ := newTestLoader(t, software.Config{}, DefaultConfig(), nil)
	assert.ErrorIs(t, l.AddResource(struct{}{}, nil), ErrUnknownResource)
	assert.ErrorIs(t, l.RemoveResource(42), ErrUnknownResource)
	assert.ErrorIs(t, l.BeginUpdateResource("buffer"), ErrUnknownResource)
	assert.ErrorIs(t, l.EndUpdateResource(nil), ErrUnknownResource)
	_, err := l.FlushResourceUpdates(3)
	assert.ErrorIs(t, err, ErrNodeMismatch)
}

func TestLastSemaphoreSubmitted(t *testing.T) {
	l, _ := newTestLoader(t, software.Config{}, DefaultConfig(), nil)
	assert.Nil(t, l.LastSemaphoreSubmitted(0))
	assert.Nil(t, l.LastSemaphoreSubmitted(5))

	dst := newGPUBuffer(t, l, 128)
	var token SyncToken
	require.NoError(t, l.AddResource(&BufferLoadDesc{Buffer: dst, Data: pattern(128, 1)}, &token))
	l.WaitForToken(token)

	semaphore := l.LastSemaphoreSubmitted(0)
	require.NotNil(t, semaphore)
	assert.Equal(t, uint64(1), semaphore.(*software.Semaphore).Pending())
	assert.Nil(t, l.LastSemaphoreSubmitted(0))
}

func TestFailedRequestsCompleteWithError(t *testing.T) {
	l, _ := newTestLoader(t, software.Config{}, DefaultConfig(), os.DirFS(t.TempDir()))
	var out gpu.Texture
	var token SyncToken
	require.NoError(t, l.AddResource(&TextureLoadDesc{Texture: &out, FileName: "missing.dds"}, &token))
	l.WaitForToken(token)

	err := l.TokenError(token)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Nil(t, out)
	assert.Equal(t, uint64(1), l.Stats().InvalidRequests)

	dst := newGPUBuffer(t, l, 64)
	var next SyncToken
	require.NoError(t, l.AddResource(&BufferLoadDesc{Buffer: dst, Data: pattern(64, 5)}, &next))
	l.WaitForToken(next)
	assert.NoError(t, l.TokenError(next))
	assert.Equal(t, pattern(64, 5), dst.(*software.Buffer).Contents())
}

func TestFailuresAreBounded(t *testing.T) {
	l, _ := newTestLoader(t, software.Config{}, DefaultConfig(), nil)
	for token := SyncToken(1); token <= maxTrackedFailures+10; token++ {
		l.recordFailure(token, ErrInvalidRequest)
	}
	assert.NoError(t, l.TokenError(1))
	assert.NoError(t, l.TokenError(10))
	assert.ErrorIs(t, l.TokenError(11), ErrInvalidRequest)
	assert.ErrorIs(t, l.TokenError(maxTrackedFailures+10), ErrInvalidRequest)
	assert.Len(t, l.failures, maxTrackedFailures)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfig(filepath.Join(dir, "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	path := filepath.Join(dir, "loader.toml")
	require.NoError(t, os.WriteFile(path, []byte("buffer_size = 65536\nbuffer_count = 9\nsingle_threaded = true\n"), 0o644))
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(65536), cfg.BufferSize)
	assert.Equal(t, maxBufferCount, cfg.BufferCount)
	assert.True(t, cfg.SingleThreaded)
	assert.Equal(t, uint64(65536), cfg.UploadBufferSize)

	require.NoError(t, os.WriteFile(path, []byte("buffer_size = \"big\""), 0o644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}
