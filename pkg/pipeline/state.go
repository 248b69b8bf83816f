// SPDX-License-Identifier: Apache-2.0
package pipeline

import (
	"fmt"
	"time"
)

// State is a pipeline stage. A run only ever moves forward through the
// states in declaration order, or into Failed.
type State int

const (
	Start State = iota
	Extracted
	ManifestLoaded
	ToolchainReady
	Built
	Verified
	ManifestUpdated
	Repackaged
	Executed
	Failed
)

var stateNames = [...]string{
	Start:           "Start",
	Extracted:       "Extracted",
	ManifestLoaded:  "ManifestLoaded",
	ToolchainReady:  "ToolchainReady",
	Built:           "Built",
	Verified:        "Verified",
	ManifestUpdated: "ManifestUpdated",
	Repackaged:      "Repackaged",
	Executed:        "Executed",
	Failed:          "Failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Transition records one state change.
type Transition struct {
	From State
	To   State
	At   time.Time
}

// StageError reports the stage a run was trying to reach when it failed.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
