package source

import (
	"context"
	"path/filepath"
	"testing"

	"formsentry/internal/infra/source/memory"
	"formsentry/internal/infra/source/sqlite"
)

func TestOpenFromEnvDefaultsToMemory(t *testing.T) {
	t.Setenv("FORMSENTRY_SOURCE_DRIVER", "")
	src, err := OpenFromEnv(context.Background(), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := src.(*memory.Source); !ok {
		t.Fatalf("want memory source, got %T", src)
	}
}

func TestOpenFromEnvSQLite(t *testing.T) {
	t.Setenv("FORMSENTRY_SOURCE_DRIVER", "sqlite")
	t.Setenv("FORMSENTRY_SQLITE_PATH", filepath.Join(t.TempDir(), "forms.db"))
	src, err := OpenFromEnv(context.Background(), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s, ok := src.(*sqlite.Source)
	if !ok {
		t.Fatalf("want sqlite source, got %T", src)
	}
	_ = s.Close()
}

func TestOpenFromEnvUnknownDriver(t *testing.T) {
	t.Setenv("FORMSENTRY_SOURCE_DRIVER", "etcd")
	if _, err := OpenFromEnv(context.Background(), nil); err == nil {
		t.Fatalf("unknown driver accepted")
	}
}
