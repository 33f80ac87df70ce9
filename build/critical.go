package build

import (
	"fmt"
	"log"
	"strings"
)

// Severe logs an unexpected-but-recoverable condition. In a DEBUG build it
// panics instead, so that invariant violations are caught during
// development rather than silently tolerated in the field.
func Severe(v ...interface{}) {
	s := "SEVERE: " + fmt.Sprintln(v...)
	if DEBUG {
		panic(s)
	}
	log.Print(s)
}

// Critical logs a condition that should be impossible to reach. Like
// Severe, it panics under a DEBUG build.
func Critical(v ...interface{}) {
	s := "CRITICAL: " + fmt.Sprintln(v...)
	if DEBUG {
		panic(s)
	}
	log.Print(s)
}

// JoinErrors combines multiple non-nil errors into one, separated by sep.
// Returns nil if errs is empty or contains only nils.
func JoinErrors(errs []error, sep string) error {
	var msgs []string
	for _, err := range errs {
		if err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return fmt.Errorf("%s", strings.Join(msgs, sep))
}
