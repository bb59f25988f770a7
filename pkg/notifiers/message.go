package notifiers

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Attribute names attached to every delivered report. Queue and topic
// subscribers filter on these without decoding the body.
const (
	attrDirectoryID  = "directory_id"
	attrHealth       = "health"
	attrFailedSteps  = "failed_steps"
	attrProblemTypes = "problem_types"
	attrStatusCodes  = "status_codes"
	attrRetryAfter   = "retry_after_seconds"
)

// reportAttributes flattens the parts of a report that routing rules care
// about. Empty values are omitted; SQS and SNS reject empty attributes.
func reportAttributes(evt Event) map[string]string {
	r := evt.Report
	attrs := map[string]string{
		attrDirectoryID: evt.DirectoryID,
		attrHealth:      evt.healthLabel(),
	}

	var steps, problems, codes []string
	for _, f := range r.Failures {
		steps = appendUnique(steps, f.Step)
		problems = appendUnique(problems, f.ProblemType)
		if f.StatusCode != 0 {
			codes = appendUnique(codes, strconv.Itoa(f.StatusCode))
		}
	}
	setJoined(attrs, attrFailedSteps, steps)
	setJoined(attrs, attrProblemTypes, problems)
	setJoined(attrs, attrStatusCodes, codes)
	if r.RetryAfterSeconds > 0 {
		attrs[attrRetryAfter] = strconv.FormatInt(r.RetryAfterSeconds, 10)
	}
	return attrs
}

// reportSummary is a one-line human readable digest, used as the SNS subject
// and the webhook summary.
func reportSummary(evt Event) string {
	if evt.Healthy {
		return fmt.Sprintf("ACME directory %s healthy", evt.DirectoryID)
	}
	var problems []string
	for _, f := range evt.Report.Failures {
		problems = appendUnique(problems, f.ProblemType)
	}
	if len(problems) == 0 {
		return fmt.Sprintf("ACME directory %s unhealthy", evt.DirectoryID)
	}
	return fmt.Sprintf("ACME directory %s unhealthy: %s", evt.DirectoryID, strings.Join(problems, ", "))
}

func appendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func setJoined(attrs map[string]string, key string, values []string) {
	if len(values) == 0 {
		return
	}
	sort.Strings(values)
	attrs[key] = strings.Join(values, ",")
}

// clip shortens s to at most n bytes, ending in "..." when cut, without
// splitting a rune.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n - len("...")
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
