package testutils

import (
	"strings"

	. "github.com/onsi/gomega"
)

// Recorder collects events in the order they are fired, as "<kind>:<key>" entries.
type Recorder struct {
	entries []string
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder { return &Recorder{entries: []string{}} }

// Record appends an entry and never fails, so it can be returned directly from a callback.
func (r *Recorder) Record(kind, key string) error {
	r.entries = append(r.entries, kind+":"+key)
	return nil
}

// Entries returns the recorded entries.
func (r *Recorder) Entries() []string { return r.entries }

// Count returns the number of entries of the given kind.
func (r *Recorder) Count(kind string) int {
	n := 0
	for _, e := range r.entries {
		if strings.HasPrefix(e, kind+":") {
			n++
		}
	}
	return n
}

// Reset drops the recorded entries.
func (r *Recorder) Reset() { r.entries = []string{} }

// ExpectEntries validates the recorded entries, in order.
func (r *Recorder) ExpectEntries(expected ...string) {
	if len(expected) == 0 {
		ExpectWithOffset(1, r.entries).To(BeEmpty())
		return
	}
	ExpectWithOffset(1, r.entries).To(Equal(expected))
}
