// SPDX-License-Identifier: Apache-2.0
package workenv

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/google/renameio"
	"github.com/gowebpki/jcs"

	perrors "github.com/provide-io/flavor/go/pipeline/pkg/errors"
)

// RunMarker is written next to the extraction root when a run ends. Markers
// are canonical JSON (RFC 8785) so identical runs produce identical bytes.
type RunMarker struct {
	Timestamp time.Time `json:"timestamp"`
	PID       int       `json:"pid"`
	Package   string    `json:"package,omitempty"`
	Version   string    `json:"version,omitempty"`
	SHA256    string    `json:"sha256,omitempty"`
	Archive   string    `json:"archive,omitempty"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// MarkComplete records a successful run and drops any incomplete marker.
func MarkComplete(l Layout, m RunMarker) error {
	if err := writeMarker(l.CompleteFile(), m); err != nil {
		return err
	}
	return removeIfExists(l.IncompleteFile())
}

// MarkIncomplete records the stage a run failed in. The complete marker is
// removed first so the directory never claims both.
func MarkIncomplete(l Layout, m RunMarker) error {
	if err := ClearComplete(l); err != nil {
		return err
	}
	return writeMarker(l.IncompleteFile(), m)
}

// ClearComplete removes the complete marker, if any.
func ClearComplete(l Layout) error {
	return removeIfExists(l.CompleteFile())
}

// ReadMarker loads a marker written by MarkComplete or MarkIncomplete.
func ReadMarker(path string) (*RunMarker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m RunMarker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// IsComplete reports whether the last run in l succeeded and, when sha256 is
// given, produced that binary digest.
func IsComplete(l Layout, sha256 string) bool {
	if _, err := os.Stat(l.IncompleteFile()); err == nil {
		return false
	}
	m, err := ReadMarker(l.CompleteFile())
	if err != nil {
		return false
	}
	return sha256 == "" || m.SHA256 == sha256
}

func writeMarker(path string, m RunMarker) error {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	m.Timestamp = m.Timestamp.UTC()
	if m.PID == 0 {
		m.PID = os.Getpid()
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(path, canonical, 0o644); err != nil {
		return perrors.IO("write", path, err)
	}
	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return perrors.IO("remove", path, err)
	}
	return nil
}
