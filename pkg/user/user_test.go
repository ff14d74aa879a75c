package user

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestStore_AddSaveReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "users.json")
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	for _, name := range []string{"zoe", "adam"} {
		if err := s.Add(name, name+"-pw"); err != nil {
			t.Fatalf("Add(%q) error = %v", name, err)
		}
	}
	if err := s.Add("adam", "again"); err == nil {
		t.Error("Add accepted a duplicate user")
	}
	if err := s.Add("", "pw"); err == nil {
		t.Error("Add accepted an empty username")
	}
	if err := s.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o, want 600", perm)
	}
	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".users-*"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}

	reloaded, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore(reload) error = %v", err)
	}
	if got, want := reloaded.List(), []string{"adam", "zoe"}; !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}

	tests := []struct {
		name, user, pass string
		want             bool
	}{
		{"correct", "adam", "adam-pw", true},
		{"wrong password", "adam", "zoe-pw", false},
		{"unknown user", "eve", "adam-pw", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reloaded.Authenticate(tt.user, tt.pass); got != tt.want {
				t.Errorf("Authenticate(%q) = %v, want %v", tt.user, got, tt.want)
			}
		})
	}
}

func TestStore_Delete(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "users.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Add("bob", "pw"); err != nil {
		t.Fatal(err)
	}
	if !s.Delete("bob") {
		t.Error("Delete(bob) = false, want true")
	}
	if s.Delete("bob") {
		t.Error("second Delete(bob) = true, want false")
	}
	if s.Authenticate("bob", "pw") {
		t.Error("deleted user still authenticates")
	}
}

func TestNewStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewStore(path); err == nil {
		t.Error("NewStore accepted a corrupt file")
	}
}
