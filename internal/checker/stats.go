package checker

import "github.com/jabolina/maelstrom-go/internal/history"

// Stats counts history entries by :f and by :type (spec §4.6 "stats:
// counts by :f and :type"). Always valid -- it is pure reporting, not
// a safety property.
func Stats(entries []history.Entry) Result {
	byF := map[string]int{}
	byType := map[string]int{}
	for _, e := range entries {
		byF[e.F]++
		byType[string(e.Type)]++
	}
	return Result{
		Valid: "true",
		Details: map[string]interface{}{
			"__checker": "stats",
			"by-f":      byF,
			"by-type":   byType,
			"count":     len(entries),
		},
	}
}
