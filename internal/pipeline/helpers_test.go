package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/maauso/viralclips/internal/analysis"
	"github.com/maauso/viralclips/internal/media"
	"github.com/maauso/viralclips/internal/project"
	"github.com/maauso/viralclips/internal/storage"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTranscoder struct {
	mock.Mock
}

func (m *mockTranscoder) Probe(ctx context.Context, path string) (float64, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockTranscoder) CutCropCaption(ctx context.Context, opts media.CutOptions) (string, error) {
	args := m.Called(ctx, opts)
	return args.String(0), args.Error(1)
}

// expectCut makes the mock write a small output file, like a real encoder would.
func expectCut(m *mockTranscoder, optsMatcher any) *mock.Call {
	return m.On("CutCropCaption", mock.Anything, optsMatcher).
		Run(func(args mock.Arguments) {
			opts := args.Get(1).(media.CutOptions)
			_ = os.WriteFile(opts.Output, []byte("clip:"+opts.Input), 0600)
		}).
		Return("ok", nil)
}

type mockAnalyzer struct {
	mock.Mock
}

func (m *mockAnalyzer) Analyze(ctx context.Context, req analysis.Request) ([]analysis.Segment, error) {
	args := m.Called(ctx, req)
	segs, _ := args.Get(0).([]analysis.Segment)
	return segs, args.Error(1)
}

// memBlobs is an in-memory BlobStore with error injection.
type memBlobs struct {
	mu       sync.Mutex
	objects  map[string][]byte
	modified map[string]time.Time

	getErr        error
	putErr        error
	deleteErr     error
	deleteManyErr error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{
		objects:  make(map[string][]byte),
		modified: make(map[string]time.Time),
	}
}

func (b *memBlobs) seed(key, content string, modified time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = []byte(content)
	b.modified[key] = modified
}

func (b *memBlobs) has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok
}

func (b *memBlobs) keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.objects))
	for k := range b.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (b *memBlobs) Put(_ context.Context, key string, body io.Reader, _ string) error {
	if b.putErr != nil {
		return b.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	b.seed(key, string(data), time.Now())
	return nil
}

func (b *memBlobs) Get(_ context.Context, key string) (io.ReadCloser, error) {
	if b.getErr != nil {
		return nil, b.getErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrObjectNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *memBlobs) Delete(_ context.Context, key string) error {
	if b.deleteErr != nil {
		return b.deleteErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	delete(b.modified, key)
	return nil
}

func (b *memBlobs) DeleteMany(_ context.Context, keys []string) (int, error) {
	if b.deleteManyErr != nil {
		return 0, b.deleteManyErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, k := range keys {
		if _, ok := b.objects[k]; ok {
			n++
		}
		delete(b.objects, k)
		delete(b.modified, k)
	}
	return n, nil
}

func (b *memBlobs) SignedPutURL(_ context.Context, key, _ string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://blobs.test/%s?put&ttl=%d", key, int(ttl.Seconds())), nil
}

func (b *memBlobs) SignedGetURL(_ context.Context, key string, ttl time.Duration, _ bool) (string, error) {
	return fmt.Sprintf("https://blobs.test/%s?ttl=%d", key, int(ttl.Seconds())), nil
}

func (b *memBlobs) ListOlderThan(_ context.Context, prefix string, cutoff time.Time) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for k, m := range b.modified {
		if strings.HasPrefix(k, prefix) && m.Before(cutoff) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// faultyRepo wraps MemoryRepository with injectable write failures.
type faultyRepo struct {
	*project.MemoryRepository

	mu sync.Mutex
	// statusErr is consulted on every UpdateProjectStatus with the status being written.
	statusErr     func(project.Status) error
	createClipErr error
	updateClipErr error
}

func (r *faultyRepo) UpdateProjectStatus(ctx context.Context, p *project.Project) error {
	r.mu.Lock()
	fn := r.statusErr
	r.mu.Unlock()
	if fn != nil {
		if err := fn(p.Status); err != nil {
			return err
		}
	}
	return r.MemoryRepository.UpdateProjectStatus(ctx, p)
}

func (r *faultyRepo) CreateClip(ctx context.Context, c *project.Clip) error {
	if r.createClipErr != nil {
		return r.createClipErr
	}
	return r.MemoryRepository.CreateClip(ctx, c)
}

func (r *faultyRepo) UpdateClipMedia(ctx context.Context, c *project.Clip) error {
	if r.updateClipErr != nil {
		return r.updateClipErr
	}
	return r.MemoryRepository.UpdateClipMedia(ctx, c)
}

type fixture struct {
	repo       *faultyRepo
	blobs      *memBlobs
	workspace  *storage.Workspace
	transcoder *mockTranscoder
	analyzer   *mockAnalyzer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ws, err := storage.NewWorkspace(t.TempDir())
	require.NoError(t, err)
	return &fixture{
		repo:       &faultyRepo{MemoryRepository: project.NewMemoryRepository()},
		blobs:      newMemBlobs(),
		workspace:  ws,
		transcoder: new(mockTranscoder),
		analyzer:   new(mockAnalyzer),
	}
}

func (f *fixture) deps() Dependencies {
	return Dependencies{
		Repo:       f.repo,
		Blobs:      f.blobs,
		Workspace:  f.workspace,
		Transcoder: f.transcoder,
		Analyzer:   f.analyzer,
	}
}

// newProject stores a PENDING project whose source object exists.
func (f *fixture) newProject(t *testing.T, sourceKey string) *project.Project {
	t.Helper()
	p := project.New("owner-1", sourceKey)
	require.NoError(t, f.repo.CreateProject(context.Background(), p))
	if storage.IsBlobKey(sourceKey) {
		f.blobs.seed(sourceKey, "source-video", time.Now())
	}
	return p
}

// assertWorkspaceEmpty checks that every scratch directory was released.
func (f *fixture) assertWorkspaceEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.workspace.Root())
	require.NoError(t, err)
	require.Empty(t, entries, "scratch directories left behind")
}

func ptr[T any](v T) *T {
	return &v
}
