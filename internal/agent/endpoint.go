package agent

import (
	"fmt"
	"sort"
	"strings"

	"archpilot/internal/sse"
)

// Endpoint is an agent route on the backend together with the decode policy
// its stream needs.
type Endpoint struct {
	Name   string
	Path   string
	Policy sse.Policy
}

func (e Endpoint) StreamPath() string {
	return strings.TrimRight(e.Path, "/") + "/stream"
}

var (
	TargetPlanner = Endpoint{
		Name:   "target-planner",
		Path:   "/agent/target-planner",
		Policy: sse.MultiStep{},
	}
	PatternSelector = Endpoint{
		Name:   "pattern-selector",
		Path:   "/agent/pattern-selector",
		Policy: sse.SingleStep{},
	}
)

var endpoints = map[string]Endpoint{
	TargetPlanner.Name:   TargetPlanner,
	PatternSelector.Name: PatternSelector,
}

func LookupEndpoint(name string) (Endpoint, error) {
	ep, ok := endpoints[strings.TrimSpace(name)]
	if !ok {
		return Endpoint{}, fmt.Errorf("unknown agent endpoint: %s (known: %s)", name, strings.Join(EndpointNames(), ", "))
	}
	return ep, nil
}

func EndpointNames() []string {
	names := make([]string, 0, len(endpoints))
	for name := range endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
