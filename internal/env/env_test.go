package env

import (
	"reflect"
	"testing"
)

func TestFromSlicePreservesOrder(t *testing.T) {
	e := FromSlice([]string{"B=2", "A=1", "B=3", "BROKEN", "=C:=C:\\work"}, false)

	if got, want := e.Keys(), []string{"B", "A", "=C:"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected keys: got %v want %v", got, want)
	}
	if got, want := e.Get("B"), "3"; got != want {
		t.Fatalf("override mismatch: got %q want %q", got, want)
	}
	if got, want := e.Get("=C:"), "C:\\work"; got != want {
		t.Fatalf("drive variable mismatch: got %q want %q", got, want)
	}
}

func TestFoldCaseLookup(t *testing.T) {
	e := FromSlice([]string{"Path=C:\\bin"}, true)

	if got, want := e.Get("PATH"), "C:\\bin"; got != want {
		t.Fatalf("folded lookup mismatch: got %q want %q", got, want)
	}
	e.Set("PATH", "D:\\bin")
	if got, want := e.Slice(), []string{"Path=D:\\bin"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected original spelling retained: got %v want %v", got, want)
	}

	sensitive := FromSlice([]string{"Path=x"}, false)
	if _, ok := sensitive.Lookup("PATH"); ok {
		t.Fatalf("case-sensitive mapping matched a different spelling")
	}
}

func TestMergeAppendsSorted(t *testing.T) {
	e := FromSlice([]string{"HOME=/root"}, false)
	e.Merge(map[string]string{"ZED": "z", "ALPHA": "a", "HOME": "/home/me"})

	want := []string{"HOME=/home/me", "ALPHA=a", "ZED=z"}
	if got := e.Slice(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected merge result: got %v want %v", got, want)
	}
}

func TestDeleteAndClone(t *testing.T) {
	e := FromMap(map[string]string{"A": "1", "B": "2"}, false)
	dup := e.Clone()
	e.Delete("A")

	if e.Len() != 1 {
		t.Fatalf("expected one key after delete, got %d", e.Len())
	}
	if got := dup.Get("A"); got != "1" {
		t.Fatalf("clone affected by delete: got %q", got)
	}
}

func TestNilEnvIsEmpty(t *testing.T) {
	var e *Env
	if e.Len() != 0 || e.Get("X") != "" || len(e.Slice()) != 0 {
		t.Fatalf("nil env should behave as empty")
	}
}

func TestFromOSSnapshotsEnvironment(t *testing.T) {
	t.Setenv("PORTEXEC_ENV_TEST", "snapshot")

	e := FromOS(true)
	if got, want := e.Get("portexec_env_test"), "snapshot"; got != want {
		t.Fatalf("folded snapshot lookup: got %q want %q", got, want)
	}

	t.Setenv("PORTEXEC_ENV_TEST", "changed")
	if got, want := e.Get("PORTEXEC_ENV_TEST"), "snapshot"; got != want {
		t.Fatalf("snapshot must not follow later changes: got %q want %q", got, want)
	}
	if _, ok := FromOS(false).Lookup("portexec_env_test"); ok {
		t.Fatalf("unfolded snapshot must be case-sensitive")
	}
}
