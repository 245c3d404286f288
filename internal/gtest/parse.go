package gtest

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/harrison/devicelab/internal/models"
)

// googletest result lines look like:
//
//	[ RUN      ] Suite.Name
//	[       OK ] Suite.Name (13 ms)
//	[  FAILED  ] Suite.Name (2 ms)
//	[  SKIPPED ] Suite.Name (0 ms)
var resultLineRegex = regexp.MustCompile(`^\[\s*(RUN|OK|FAILED|SKIPPED)\s*\]\s+(\S+)(?:\s+\((\d+)\s*ms\))?`)

// ParseOutput extracts per-test outcomes from googletest stdout. A test
// that was started (RUN line) but never reported a verdict is classified
// CRASH: the process died under it.
func ParseOutput(output string) []models.TestOutcome {
	var outcomes []models.TestOutcome
	started := make(map[string]bool)
	var startOrder []string

	for _, line := range strings.Split(output, "\n") {
		m := resultLineRegex.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		verdict, name := m[1], m[2]

		var duration time.Duration
		if m[3] != "" {
			if ms, err := strconv.Atoi(m[3]); err == nil {
				duration = time.Duration(ms) * time.Millisecond
			}
		}

		switch verdict {
		case "RUN":
			if !started[name] {
				started[name] = true
				startOrder = append(startOrder, name)
			}
		case "OK":
			delete(started, name)
			outcomes = append(outcomes, models.TestOutcome{
				Name: name, Status: models.StatusPass, Duration: duration,
			})
		case "FAILED":
			delete(started, name)
			outcomes = append(outcomes, models.TestOutcome{
				Name: name, Status: models.StatusFail, Duration: duration, Log: line,
			})
		case "SKIPPED":
			delete(started, name)
			outcomes = append(outcomes, models.TestOutcome{
				Name: name, Status: models.StatusSkip, Duration: duration,
			})
		}
	}

	for _, name := range startOrder {
		if started[name] {
			outcomes = append(outcomes, models.TestOutcome{
				Name:   name,
				Status: models.StatusCrash,
				Log:    "test started but never reported a verdict",
			})
		}
	}
	return outcomes
}
