// Package runner composes C1-C7 (Net, Process Supervisor, Client,
// Services, Nemesis, Workload, Checkers) into one end-to-end test
// execution (spec §6 "test runner"), grounded on the teacher's
// daemon-style wiring of independent concurrent activities into one
// lifecycle in pkg/mcast/core/instance.go (the teacher's nearest
// analogue: an Invoker owning a Transport, an Observer map and the
// protocol state machine, started and torn down as one unit).
package runner

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Options configures one test run (spec §6 CLI, "test" subcommand).
// A yaml test-spec file decodes directly into this struct; the CLI
// layer only parses flags into it and otherwise carries no business
// logic (spec AMBIENT STACK "Configuration").
type Options struct {
	TestName        string        `yaml:"test-name"`
	WorkloadName    string        `yaml:"workload"`
	Bin             string        `yaml:"bin"`
	Args            []string      `yaml:"args"`
	NodeCount       int           `yaml:"node-count"`
	ClientCount     int           `yaml:"client-count"`
	OpsPerClient    int           `yaml:"ops-per-client"`
	TimeLimit       time.Duration `yaml:"time-limit"`
	Rate            float64       `yaml:"rate"` // ops/sec per client (spec §1, §8 scenarios); 0 disables throttling
	NemesisInterval time.Duration `yaml:"nemesis-interval"` // 0 disables nemesis
	LatencyMeanMs   float64       `yaml:"latency-mean-ms"`
	LossProbability float64       `yaml:"loss-probability"`
	Seed            int64         `yaml:"seed"`
	StoreDir        string        `yaml:"store-dir"`
	NumKeys         int           `yaml:"num-keys"`    // txn workloads
	Keys            []string      `yaml:"keys"`        // kafka workload
	StrictNetCheck  bool          `yaml:"strict-net"`  // checker.Net: fail on send/recv mismatch
}

// DefaultOptions returns sane defaults, overridden field-by-field by a
// loaded test-spec or CLI flags.
func DefaultOptions() Options {
	return Options{
		TestName:     "unnamed-test",
		WorkloadName: "echo",
		NodeCount:    3,
		ClientCount:  5,
		OpsPerClient: 50,
		TimeLimit:    10 * time.Second,
		Seed:         1,
		StoreDir:     "store",
	}
}

// LoadOptions decodes a yaml test-spec file on top of DefaultOptions.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	raw, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("reading test spec %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &opts); err != nil {
		return opts, fmt.Errorf("decoding test spec %s: %w", path, err)
	}
	return opts, nil
}

func (o Options) validate() error {
	if o.Bin == "" {
		return fmt.Errorf("options: bin is required")
	}
	if o.NodeCount < 1 {
		return fmt.Errorf("options: node-count must be >= 1")
	}
	if o.ClientCount < 1 {
		return fmt.Errorf("options: client-count must be >= 1")
	}
	if o.WorkloadName == "" {
		return fmt.Errorf("options: workload is required")
	}
	return nil
}
