package command

// Registry is an ordered, immutable table of command definitions.
type Registry struct {
	defs []Definition
}

// NewRegistry builds a registry. Lookup returns the first definition
// registered for an id.
func NewRegistry(defs ...Definition) *Registry {
	return &Registry{defs: append([]Definition(nil), defs...)}
}

// DefaultRegistry returns the commands supported by the bridge.
func DefaultRegistry() *Registry {
	return NewRegistry(
		WakeUpDefinition,
		StartConditioningDefinition,
		StopConditioningDefinition,
		ChargeLimitDefinition,
		SentryModeDefinition,
	)
}

// Lookup finds the definition for id.
func (r *Registry) Lookup(id string) (Definition, bool) {
	for _, d := range r.defs {
		if d.ID == id {
			return d, true
		}
	}
	return Definition{}, false
}

// IDs lists the registered command ids in order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.defs))
	for i, d := range r.defs {
		ids[i] = d.ID
	}
	return ids
}

// Resolve decodes raw into a command. The returned id is set as soon as the
// envelope decoded, even when lookup or parsing fail afterwards.
func (r *Registry) Resolve(raw []byte) (string, Command, error) {
	req, err := DecodeRequest(raw)
	if err != nil {
		return "", nil, err
	}
	def, ok := r.Lookup(req.Command)
	if !ok {
		return req.Command, nil, ErrUnknownCommand
	}
	cmd, err := def.Parse(raw)
	if err != nil {
		return req.Command, nil, ErrInvalidCommandJSON.Wrap(err)
	}
	return req.Command, cmd, nil
}
