package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jabolina/maelstrom-go/internal/checker"
)

// serveCmd is the "maelstrom serve" subcommand (spec §6): an HTTP
// viewer over a store directory's test artifacts. Plot/graph
// rendering is out of scope per §1 ("graph/plot rendering" is an
// external collaborator); this handler only lists runs and serves
// their already-written artifact files and a JSON summary of each
// run's results.yaml (the results.edn-equivalent, spec SUPPLEMENTED
// FEATURES "serve subcommand surface").
func serveCmd() *cobra.Command {
	var storeDir string
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a directory of test artifacts over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			mux := http.NewServeMux()
			mux.HandleFunc("/", indexHandler(storeDir))
			mux.HandleFunc("/results/", resultsHandler(storeDir))
			mux.Handle("/artifacts/", http.StripPrefix("/artifacts/", http.FileServer(http.Dir(storeDir))))

			cmd.Printf("serving %s on %s\n", storeDir, addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				return newExitError(exitHarness, err)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&storeDir, "store-dir", "store", "directory of test artifacts to serve")
	flags.StringVar(&addr, "addr", ":8080", "address to listen on")

	return cmd
}

// indexHandler lists every test/run directory found under storeDir.
func indexHandler(storeDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		runs, err := findRuns(storeDir)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintln(w, "<!doctype html><title>maelstrom</title><h1>test runs</h1><ul>")
		for _, run := range runs {
			fmt.Fprintf(w, "<li><a href=\"/results/%s\">%s</a> &mdash; <a href=\"/artifacts/%s/timeline.html\">timeline</a></li>\n", run, run, run)
		}
		fmt.Fprintln(w, "</ul>")
	}
}

// resultsHandler serves one run's results.yaml as a JSON summary.
func resultsHandler(storeDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run := r.URL.Path[len("/results/"):]
		if run == "" {
			http.NotFound(w, r)
			return
		}
		raw, err := os.ReadFile(filepath.Join(storeDir, run, "results.yaml"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		var result checker.Result
		if err := yaml.Unmarshal(raw, &result); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

// findRuns walks storeDir two levels deep (test-name/run-id) looking
// for a results.yaml, the marker that a run actually completed.
func findRuns(storeDir string) ([]string, error) {
	var runs []string
	testDirs, err := os.ReadDir(storeDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	for _, testDir := range testDirs {
		if !testDir.IsDir() {
			continue
		}
		runDirs, err := os.ReadDir(filepath.Join(storeDir, testDir.Name()))
		if err != nil {
			continue
		}
		for _, runDir := range runDirs {
			if !runDir.IsDir() {
				continue
			}
			rel := filepath.Join(testDir.Name(), runDir.Name())
			if _, err := os.Stat(filepath.Join(storeDir, rel, "results.yaml")); err == nil {
				runs = append(runs, rel)
			}
		}
	}
	return runs, nil
}
