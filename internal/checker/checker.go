// Package checker implements the cross-cutting, non-workload-specific
// checkers (spec §4.6: perf, timeline, exceptions, stats, net) and the
// conjunctive composition rule that folds every sub-checker's verdict
// (including each workload's own Checker, from internal/workload) into
// one overall test result. The teacher has no checker analogue of its
// own -- "correctness" there is protocol-internal gossip state, never a
// post-hoc history analysis -- so this package is built directly from
// §4.6/§4.7/§8, in the idiom set by the teacher's own success/failure
// response shape (pkg/mcast/types.Response{Success, Data, Failure}),
// generalized here into Result{Valid, Details}.
package checker

import (
	"strconv"

	"github.com/jabolina/maelstrom-go/internal/workload"
)

// Result is one checker's verdict: "true", "false" or "unknown" (spec
// §4.6 ":valid?"), plus whatever supporting detail it wants to surface
// in results.edn's Go-native equivalent.
type Result struct {
	Valid   string                 `json:"valid?" yaml:"valid?"`
	Details map[string]interface{} `json:"details,omitempty" yaml:"details,omitempty"`
}

// FromWorkload lifts a workload.CheckResult (echo equality, g-set
// membership, lin-kv linearizability, ...) into the checker package's
// own Result shape.
func FromWorkload(r workload.CheckResult) Result {
	return Result{Valid: r.Valid, Details: r.Details}
}

// Compose folds every sub-checker's Result into one overall verdict
// (spec §4.6: "conjunctive composition": overall valid? is true only
// if every sub-checker is true; unknown downgrades; false dominates).
func Compose(results ...Result) Result {
	overall := "true"
	details := make(map[string]interface{}, len(results))
	for i, r := range results {
		switch r.Valid {
		case "false":
			overall = "false"
		case "unknown":
			if overall != "false" {
				overall = "unknown"
			}
		}
		if r.Details != nil {
			details[keyFor(i, r)] = r.Details
		}
	}
	return Result{Valid: overall, Details: details}
}

func keyFor(i int, r Result) string {
	if name, ok := r.Details["__checker"].(string); ok {
		return name
	}
	return "checker-" + strconv.Itoa(i)
}
