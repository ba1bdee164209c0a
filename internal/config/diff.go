package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; provider and
// storage changes require a restart and are deliberately ignored here.
type ConfigDiff struct {
	AgentsChanged   bool        // true if any agent persona changed
	AgentChanges    []AgentDiff // per-agent diffs
	LogLevelChanged bool
	NewLogLevel     LogLevel
	CallChanged     bool // call timing windows changed; applies to new calls
}

// AgentDiff describes what changed for a single agent persona.
type AgentDiff struct {
	Name           string
	ProductChanged bool
	FlavorChanged  bool
	VoiceChanged   bool
	Added          bool
	Removed        bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Call != new.Call {
		d.CallChanged = true
	}

	oldAgents := make(map[string]*AgentConfig, len(old.Agents))
	for i := range old.Agents {
		oldAgents[old.Agents[i].Name] = &old.Agents[i]
	}
	newAgents := make(map[string]*AgentConfig, len(new.Agents))
	for i := range new.Agents {
		newAgents[new.Agents[i].Name] = &new.Agents[i]
	}

	// Detect modified and removed agents.
	for name, oldA := range oldAgents {
		newA, exists := newAgents[name]
		if !exists {
			d.AgentChanges = append(d.AgentChanges, AgentDiff{Name: name, Removed: true})
			d.AgentsChanged = true
			continue
		}
		ad := diffAgent(name, oldA, newA)
		if ad.ProductChanged || ad.FlavorChanged || ad.VoiceChanged {
			d.AgentChanges = append(d.AgentChanges, ad)
			d.AgentsChanged = true
		}
	}

	// Detect added agents.
	for name := range newAgents {
		if _, exists := oldAgents[name]; !exists {
			d.AgentChanges = append(d.AgentChanges, AgentDiff{Name: name, Added: true})
			d.AgentsChanged = true
		}
	}

	return d
}

// diffAgent compares two agent configs with the same name.
func diffAgent(name string, old, new *AgentConfig) AgentDiff {
	ad := AgentDiff{Name: name}
	if old.Product != new.Product {
		ad.ProductChanged = true
	}
	if old.Flavor != new.Flavor {
		ad.FlavorChanged = true
	}
	if old.Voice != new.Voice {
		ad.VoiceChanged = true
	}
	return ad
}
