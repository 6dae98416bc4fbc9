package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Issue is a single schema violation at a dotted path.
type Issue struct {
	Path    string
	Message string
}

// Errors aggregates every issue found by one Parse call.
type Errors []Issue

func (e Errors) Error() string {
	if len(e) == 0 {
		return "schema validation failed"
	}
	parts := make([]string, 0, len(e))
	for _, issue := range e {
		if issue.Path == "" {
			parts = append(parts, issue.Message)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", issue.Path, issue.Message))
	}
	return "schema validation failed: " + strings.Join(parts, "; ")
}

// Messages returns the issue messages prefixed by their path.
func (e Errors) Messages() []string {
	messages := make([]string, 0, len(e))
	for _, issue := range e {
		if issue.Path == "" {
			messages = append(messages, issue.Message)
		} else {
			messages = append(messages, issue.Path+": "+issue.Message)
		}
	}
	return messages
}

func (e Errors) Has(path string) bool {
	for _, issue := range e {
		if issue.Path == path {
			return true
		}
	}
	return false
}

// Extract returns the aggregated issues carried by err, if any.
func Extract(err error) Errors {
	if err == nil {
		return nil
	}
	var issues Errors
	if errors.As(err, &issues) {
		return issues
	}
	return nil
}

func (e *Errors) add(path, format string, args ...any) {
	*e = append(*e, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
}
