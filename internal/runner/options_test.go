package runner

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadOptionsOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.yaml")
	content := "test-name: my-test\nworkload: g-set\nnode-count: 5\ntime-limit: 30s\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	opts, err := LoadOptions(path)
	if err != nil {
		t.Fatalf("LoadOptions: %v", err)
	}
	if opts.TestName != "my-test" || opts.WorkloadName != "g-set" || opts.NodeCount != 5 {
		t.Fatalf("unexpected overrides: %+v", opts)
	}
	if opts.TimeLimit != 30*time.Second {
		t.Fatalf("expected time-limit 30s, got %s", opts.TimeLimit)
	}
	if opts.ClientCount != DefaultOptions().ClientCount {
		t.Fatalf("expected unset fields to keep their default, got %+v", opts)
	}
}

func TestValidateRequiresBinAndWorkload(t *testing.T) {
	opts := DefaultOptions()
	opts.WorkloadName = ""
	opts.Bin = "/bin/true"
	if err := opts.validate(); err == nil {
		t.Fatal("expected validation to reject a missing workload name")
	}

	opts = DefaultOptions()
	opts.WorkloadName = "echo"
	opts.Bin = ""
	if err := opts.validate(); err == nil {
		t.Fatal("expected validation to reject a missing bin")
	}
}
