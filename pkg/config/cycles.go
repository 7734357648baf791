package config

// DetectShareCycle walks both the share_session_with and the
// share_context_window_with edges of the agents table and returns the first
// cycle it finds as an ordered chain of agent names, or nil if the graph is
// acyclic. Scoped to pkg/config per spec.md §9 Open Question #4: Core trusts
// whatever ParentID/ShareSession flags it is handed and never re-validates
// the graph itself.
func DetectShareCycle(agents map[string]AgentConfig) []string {
	if cyc := detectCycleOn(agents, func(a AgentConfig) string { return a.ShareSessionWith }); cyc != nil {
		return cyc
	}
	return detectCycleOn(agents, func(a AgentConfig) string { return a.ShareContextWindowWith })
}

func detectCycleOn(agents map[string]AgentConfig, edge func(AgentConfig) string) []string {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(agents))

	var walk func(name string, chain []string) []string
	walk = func(name string, chain []string) []string {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return append(chain, name)
		}
		state[name] = visiting
		chain = append(chain, name)

		if next := edge(agents[name]); next != "" {
			if cyc := walk(next, chain); cyc != nil {
				return cyc
			}
		}

		state[name] = done
		return nil
	}

	for name := range agents {
		if state[name] == unvisited {
			if cyc := walk(name, nil); cyc != nil {
				return cyc
			}
		}
	}
	return nil
}
