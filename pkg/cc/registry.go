package cc

import (
	"fmt"
	"sort"
	"strings"
)

// Algorithm tags accepted by New.
const (
	// AlgorithmREMB selects the delay-only baseline controller.
	AlgorithmREMB = "remb"

	// AlgorithmGCCV0 selects the combined delay+loss controller.
	AlgorithmGCCV0 = "gcc-v0"
)

// algorithms maps each tag to its constructor. The mapping is fixed at
// compile time; algorithm choice is a configuration decision, not a runtime
// one.
var algorithms = map[string]func(controllerOptions) Controller{
	AlgorithmREMB:  newREMBController,
	AlgorithmGCCV0: newGCCV0Controller,
}

// Algorithms returns the supported algorithm tags in sorted order.
func Algorithms() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New constructs the controller for the given algorithm tag. An unknown tag
// is a configuration error: it fails fast, naming the bad tag and the valid
// ones, with no silent fallback.
func New(algorithm string, opts ...Option) (Controller, error) {
	construct, ok := algorithms[algorithm]
	if !ok {
		return nil, fmt.Errorf("unknown congestion control algorithm %q (available: %s)",
			algorithm, strings.Join(Algorithms(), ", "))
	}

	options := defaultControllerOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return construct(options), nil
}
