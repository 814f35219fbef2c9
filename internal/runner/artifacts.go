package runner

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/jabolina/maelstrom-go/internal/checker"
	"github.com/jabolina/maelstrom-go/internal/history"
)

// writeArtifacts persists the run's history and results to dir (spec
// §6 "test artifacts"): history.txt (one line per entry, the
// history.edn-equivalent), results.yaml (the results.edn-equivalent
// checker verdict) and named-but-unrendered slots for the plot
// artifacts a graphical collaborator would fill in (messages.svg,
// timeline.html, latency and rate plots), each created as an empty
// file.
func writeArtifacts(dir string, entries []history.Entry, result checker.Result) error {
	if err := writeHistory(filepath.Join(dir, "history.txt"), entries); err != nil {
		return err
	}
	if err := writeYAML(filepath.Join(dir, "results.yaml"), result); err != nil {
		return err
	}
	for _, stub := range []string{"messages.svg", "timeline.html", "latency-raw.png", "latency-quantiles.png", "rate.png"} {
		if err := touch(filepath.Join(dir, stub)); err != nil {
			return err
		}
	}
	return nil
}

func writeHistory(path string, entries []history.Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	defer f.Close()
	for _, e := range entries {
		if _, err := fmt.Fprintf(f, "%d\t%d\t%s\t%s\t%v\t%s\n", e.Process, e.Time, e.Type, e.F, e.Value, e.Error); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	return nil
}

func writeYAML(path string, v interface{}) error {
	raw, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func touch(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating artifact slot %s: %w", path, err)
	}
	return f.Close()
}
