package usage

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"testing"

	"github.com/spf13/afero"

	"github.com/IYouKnow/atlas-probe/internal/fault"
)

// orderedFS lists directory entries sorted, optionally in reverse.
type orderedFS struct {
	FileSystem
	reverse bool
}

func (o orderedFS) ReadDirNames(name string) ([]string, error) {
	names, err := o.FileSystem.ReadDirNames(name)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	if o.reverse {
		sort.Sort(sort.Reverse(sort.StringSlice(names)))
	}
	return names, nil
}

// deniedFS fails every access to the listed paths with a permission error.
type deniedFS struct {
	FileSystem
	denied map[string]bool
}

func (d deniedFS) check(op, name string) error {
	if d.denied[name] {
		return &fs.PathError{Op: op, Path: name, Err: fs.ErrPermission}
	}
	return nil
}

func (d deniedFS) Stat(name string) (fs.FileInfo, error) {
	if err := d.check("stat", name); err != nil {
		return nil, err
	}
	return d.FileSystem.Stat(name)
}

func (d deniedFS) Lstat(name string) (fs.FileInfo, error) {
	if err := d.check("lstat", name); err != nil {
		return nil, err
	}
	return d.FileSystem.Lstat(name)
}

func (d deniedFS) ReadDirNames(name string) ([]string, error) {
	if err := d.check("open", name); err != nil {
		return nil, err
	}
	return d.FileSystem.ReadDirNames(name)
}

// idFS attaches device/inode identities to chosen paths.
type idFS struct {
	FileSystem
	ids map[string]*Identity
}

type idInfo struct {
	fs.FileInfo
	id *Identity
}

func (i idInfo) Sys() any { return i.id }

func (f idFS) wrap(name string, info fs.FileInfo, err error) (fs.FileInfo, error) {
	if err != nil {
		return nil, err
	}
	if id, ok := f.ids[name]; ok {
		return idInfo{FileInfo: info, id: id}, nil
	}
	return info, nil
}

func (f idFS) Stat(name string) (fs.FileInfo, error) {
	info, err := f.FileSystem.Stat(name)
	return f.wrap(name, info, err)
}

func (f idFS) Lstat(name string) (fs.FileInfo, error) {
	info, err := f.FileSystem.Lstat(name)
	return f.wrap(name, info, err)
}

// memTree builds an in-memory filesystem holding files of the given sizes.
func memTree(t testing.TB, files map[string]int, dirs ...string) afero.Fs {
	t.Helper()
	mem := afero.NewMemMapFs()
	for _, d := range dirs {
		if err := mem.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}
	for name, size := range files {
		if err := mem.MkdirAll(filepath.Dir(name), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", filepath.Dir(name), err)
		}
		if err := afero.WriteFile(mem, name, make([]byte, size), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return mem
}

func TestFolderSize_ExampleTree(t *testing.T) {
	mem := memTree(t, map[string]int{
		"/root/a.txt":     100,
		"/root/sub/b.txt": 50,
	})

	got, err := New(FromAfero(mem), DefaultOptions(), nil).FolderSize(context.Background(), "/root")
	if err != nil {
		t.Fatalf("FolderSize() error = %v", err)
	}
	if got != 150 {
		t.Errorf("FolderSize() = %d, want 150", got)
	}
}

func TestFolderSize_OrderIndependent(t *testing.T) {
	mem := memTree(t, map[string]int{
		"/t/a":           1,
		"/t/b/c":         20,
		"/t/b/d/e":       300,
		"/t/b/d/f":       4000,
		"/t/g/h/i/j/k":   50000,
		"/t/z":           600000,
		"/t/y/x/w":       7,
		"/t/y/x/v/u.dat": 80,
	}, "/t/empty", "/t/b/empty")
	const want = 1 + 20 + 300 + 4000 + 50000 + 600000 + 7 + 80

	for _, reverse := range []bool{false, true} {
		t.Run(fmt.Sprintf("reverse=%v", reverse), func(t *testing.T) {
			fsys := orderedFS{FileSystem: FromAfero(mem), reverse: reverse}
			got, err := New(fsys, DefaultOptions(), nil).FolderSize(context.Background(), "/t")
			if err != nil {
				t.Fatalf("FolderSize() error = %v", err)
			}
			if got != want {
				t.Errorf("FolderSize() = %d, want %d", got, want)
			}
		})
	}
}

func TestFolderSize_Boundaries(t *testing.T) {
	mem := memTree(t, map[string]int{"/data/single.bin": 4242}, "/data/empty")
	agg := New(FromAfero(mem), DefaultOptions(), nil)

	tests := []struct {
		name     string
		path     string
		want     uint64
		wantKind fault.Kind
		wantErr  bool
	}{
		{name: "single file", path: "/data/single.bin", want: 4242},
		{name: "empty directory", path: "/data/empty", want: 0},
		{name: "missing path", path: "/data/missing", wantErr: true, wantKind: fault.NotFound},
		{name: "empty path", path: "", wantErr: true, wantKind: fault.NotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := agg.FolderSize(context.Background(), tt.path)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("FolderSize(%q) = %d, want error", tt.path, got)
				}
				if k := fault.KindOf(err); k != tt.wantKind {
					t.Errorf("kind = %v, want %v", k, tt.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatalf("FolderSize(%q) error = %v", tt.path, err)
			}
			if got != tt.want {
				t.Errorf("FolderSize(%q) = %d, want %d", tt.path, got, tt.want)
			}
		})
	}
}

func TestFolderSize_MissingPathMessage(t *testing.T) {
	agg := New(FromAfero(afero.NewMemMapFs()), DefaultOptions(), nil)
	_, err := agg.FolderSize(context.Background(), "/nowhere")
	if err == nil || err.Error() != "/nowhere does not exist" {
		t.Errorf("error = %v, want %q", err, "/nowhere does not exist")
	}
}

func TestFolderSize_PermissionPolicy(t *testing.T) {
	mem := memTree(t, map[string]int{
		"/p/ok.txt":          10,
		"/p/secret.txt":      1000,
		"/p/sub/fine.txt":    5,
		"/p/locked/deep.txt": 70,
	})

	tests := []struct {
		name    string
		denied  string
		want    uint64
		workers int
	}{
		{name: "denied file", denied: "/p/secret.txt", want: 10 + 5 + 70},
		{name: "denied directory", denied: "/p/locked", want: 10 + 1000 + 5},
		{name: "denied file parallel", denied: "/p/secret.txt", want: 10 + 5 + 70, workers: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := deniedFS{FileSystem: FromAfero(mem), denied: map[string]bool{tt.denied: true}}

			strict := New(fsys, Options{Workers: tt.workers}, nil)
			if _, err := strict.FolderSize(context.Background(), "/p"); !fault.IsKind(err, fault.PermissionDenied) {
				t.Errorf("fail-fast error = %v, want PermissionDenied", err)
			}

			lenient := New(fsys, Options{SkipPermissionDenied: true, Workers: tt.workers}, nil)
			got, err := lenient.FolderSize(context.Background(), "/p")
			if err != nil {
				t.Fatalf("best-effort error = %v", err)
			}
			if got != tt.want {
				t.Errorf("best-effort = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFolderSize_DeniedRootAlwaysFails(t *testing.T) {
	mem := memTree(t, map[string]int{"/r/a": 1})
	fsys := deniedFS{FileSystem: FromAfero(mem), denied: map[string]bool{"/r": true}}

	agg := New(fsys, Options{SkipPermissionDenied: true}, nil)
	if _, err := agg.FolderSize(context.Background(), "/r"); !fault.IsKind(err, fault.PermissionDenied) {
		t.Errorf("error = %v, want PermissionDenied", err)
	}
}

func TestFolderSize_RevisitedDirectoryCountedOnce(t *testing.T) {
	mem := memTree(t, map[string]int{
		"/t/a.bin":            100,
		"/t/sub/b.bin":        10,
		"/t/sub/mirror/x.bin": 100,
	})
	// /t/sub/mirror carries the identity of /t, as a bind mount would.
	fsys := idFS{FileSystem: FromAfero(mem), ids: map[string]*Identity{
		"/t":            {Dev: 1, Ino: 1, Links: 1},
		"/t/sub":        {Dev: 1, Ino: 2, Links: 1},
		"/t/sub/mirror": {Dev: 1, Ino: 1, Links: 1},
	}}

	got, err := New(fsys, DefaultOptions(), nil).FolderSize(context.Background(), "/t")
	if err != nil {
		t.Fatalf("FolderSize() error = %v", err)
	}
	if got != 110 {
		t.Errorf("FolderSize() = %d, want 110", got)
	}
}

func TestFolderSize_HardLinks(t *testing.T) {
	mem := memTree(t, map[string]int{
		"/h/a.bin": 10,
		"/h/b.bin": 10,
		"/h/c.txt": 5,
	})
	fsys := idFS{FileSystem: FromAfero(mem), ids: map[string]*Identity{
		"/h/a.bin": {Dev: 3, Ino: 7, Links: 2},
		"/h/b.bin": {Dev: 3, Ino: 7, Links: 2},
	}}

	tests := []struct {
		dedupe bool
		want   uint64
	}{
		{dedupe: true, want: 15},
		{dedupe: false, want: 25},
	}
	for _, tt := range tests {
		got, err := New(fsys, Options{DedupeHardLinks: tt.dedupe}, nil).FolderSize(context.Background(), "/h")
		if err != nil {
			t.Fatalf("FolderSize() error = %v", err)
		}
		if got != tt.want {
			t.Errorf("dedupe=%v: FolderSize() = %d, want %d", tt.dedupe, got, tt.want)
		}
	}
}

func TestFolderSize_ParallelMatchesSequential(t *testing.T) {
	files := map[string]int{}
	var want uint64
	for i := 0; i < 12; i++ {
		for j := 0; j < 6; j++ {
			size := i*100 + j + 1
			files[fmt.Sprintf("/big/d%02d/s%02d/f.bin", i, j)] = size
			files[fmt.Sprintf("/big/d%02d/top%02d.bin", i, j)] = size
			want += 2 * uint64(size)
		}
	}
	fsys := FromAfero(memTree(t, files))

	for _, workers := range []int{0, 1, 2, 8, 64} {
		got, err := New(fsys, Options{Workers: workers, DedupeHardLinks: true}, nil).FolderSize(context.Background(), "/big")
		if err != nil {
			t.Fatalf("workers=%d: error = %v", workers, err)
		}
		if got != want {
			t.Errorf("workers=%d: FolderSize() = %d, want %d", workers, got, want)
		}
	}
}

func TestFolderSize_Cancelled(t *testing.T) {
	mem := memTree(t, map[string]int{"/c/a/b": 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(FromAfero(mem), DefaultOptions(), nil).FolderSize(ctx, "/c")
	if err == nil || !fault.Canceled(err) {
		t.Errorf("error = %v, want context cancellation", err)
	}
}

func TestWithOptions(t *testing.T) {
	base := New(FromAfero(afero.NewMemMapFs()), DefaultOptions(), nil)
	derived := base.WithOptions(Options{SkipPermissionDenied: true})

	if base.Options().SkipPermissionDenied {
		t.Error("WithOptions mutated the original")
	}
	if !derived.Options().SkipPermissionDenied {
		t.Error("WithOptions did not apply")
	}
}
