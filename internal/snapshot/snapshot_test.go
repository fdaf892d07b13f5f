package snapshot_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/specdeck/specdeck/internal/domain"
	"github.com/specdeck/specdeck/internal/snapshot"
)

func testState(t *testing.T) *domain.SpecState {
	t.Helper()

	id, err := domain.NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}

	cardID, err := domain.NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}

	state := domain.NewSpecState(id)
	state.Name = "Gateway"
	state.CreatedAt = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	state.Seq = 5
	state.Cards[cardID] = &domain.Card{
		ID:        cardID,
		Title:     "Design",
		Status:    domain.StatusDoing,
		Fields:    map[string]string{"owner": "ana"},
		CreatedAt: state.CreatedAt,
		UpdatedAt: state.CreatedAt,
	}

	return state
}

func Test_Save_Load_Roundtrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "snapshot.json")
	state := testState(t)

	err := snapshot.Save(path, state, state.Seq)
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, seq, err := snapshot.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if seq != state.Seq {
		t.Fatalf("seq = %d, want %d", seq, state.Seq)
	}

	if diff := cmp.Diff(state, loaded); diff != "" {
		t.Fatalf("state differs (-saved +loaded):\n%s", diff)
	}
}

func Test_Load_Missing_Snapshot_Is_Not_An_Error(t *testing.T) {
	t.Parallel()

	state, seq, err := snapshot.Load(filepath.Join(t.TempDir(), "snapshot.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if state != nil || seq != 0 {
		t.Fatalf("state,seq = %v,%d, want nil,0", state, seq)
	}
}

func Test_Load_Rejects_Damaged_Snapshot(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "snapshot.json")

	err := os.WriteFile(path, []byte(`{"magic":"SDSNAP01","seq":3,"st`), 0o600)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	_, _, err = snapshot.Load(path)
	if err == nil {
		t.Fatal("expected decode error")
	}
}

func Test_Load_Rejects_Foreign_Magic(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "snapshot.json")

	err := os.WriteFile(path, []byte(`{"magic":"OTHER","seq":3,"state":{}}`), 0o600)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	_, _, err = snapshot.Load(path)
	if !errors.Is(err, snapshot.ErrFormat) {
		t.Fatalf("err = %v, want ErrFormat", err)
	}
}

func Test_Load_Rejects_Seq_Mismatch(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "snapshot.json")
	state := testState(t)

	err := snapshot.Save(path, state, state.Seq)
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	// Tamper with the envelope seq only.
	tampered := []byte(`{"magic":"SDSNAP01","seq":999,` + string(data[len(`{"magic":"SDSNAP01","seq":5,`):]))

	err = os.WriteFile(path, tampered, 0o600)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	_, _, err = snapshot.Load(path)
	if err == nil {
		t.Fatal("expected seq mismatch error")
	}
}

// Contract: Save replaces the previous snapshot atomically; a rewrite
// leaves no temp file behind.
func Test_Save_Replaces_Previous(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	state := testState(t)

	err := snapshot.Save(path, state, state.Seq)
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	state.Seq = 9
	state.Name = "Gateway v2"

	err = snapshot.Save(path, state, state.Seq)
	if err != nil {
		t.Fatalf("save again: %v", err)
	}

	loaded, seq, err := snapshot.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if seq != 9 || loaded.Name != "Gateway v2" {
		t.Fatalf("seq,name = %d,%q, want 9,Gateway v2", seq, loaded.Name)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("dir entries = %d, want only the snapshot", len(entries))
	}
}

func Test_Remove_Missing_Is_Not_An_Error(t *testing.T) {
	t.Parallel()

	err := snapshot.Remove(filepath.Join(t.TempDir(), "snapshot.json"))
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
}
