package atl

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/atl/pkg/impl"
)

// ErrUnknownControl is returned when a control name is not defined.
var ErrUnknownControl = errors.New("atl: unknown control")

// suggestThreshold is the minimum Jaro-Winkler similarity for a name
// suggestion.
const suggestThreshold = 0.8

// ControlsDefinition is the authored control set. It is backend independent:
// every entry carries opaque [impl.ControlData] that each backend interprets
// on construction.
type ControlsDefinition struct {
	Triggers     []TriggerDefinition
	Parameters   []ParameterDefinition
	Switches     []SwitchDefinition
	Environments []EnvironmentDefinition

	// Preloads names triggers to load on the global object at startup.
	Preloads []string
}

// TriggerDefinition is a named trigger with one or more impl entries. Every
// entry becomes one event when the trigger executes.
type TriggerDefinition struct {
	Name  string
	Impls []impl.ControlData
}

// ParameterDefinition is a named parameter.
type ParameterDefinition struct {
	Name string
	Data impl.ControlData
}

// SwitchDefinition is a named switch and its states.
type SwitchDefinition struct {
	Name   string
	States []SwitchStateDefinition
}

// SwitchStateDefinition is one state of a switch.
type SwitchStateDefinition struct {
	Name string
	Data impl.ControlData
}

// EnvironmentDefinition is a named environment.
type EnvironmentDefinition struct {
	Name string
	Data impl.ControlData
}

// TriggerNames returns the names of all triggers.
func (d ControlsDefinition) TriggerNames() []string {
	names := make([]string, 0, len(d.Triggers))
	for _, t := range d.Triggers {
		names = append(names, t.Name)
	}
	return names
}

// Validate reports every empty name, duplicate name, ID collision and
// unknown preload in d.
func (d ControlsDefinition) Validate() error {
	var errs []error
	seen := make(map[ControlID]string)
	check := func(kind, name string) {
		if name == "" {
			errs = append(errs, fmt.Errorf("%s: empty name", kind))
			return
		}
		id := IDFromName(name)
		if prev, ok := seen[id]; ok {
			if strings.EqualFold(prev, name) {
				errs = append(errs, fmt.Errorf("%s %q: defined twice", kind, name))
			} else {
				errs = append(errs, fmt.Errorf("%s %q: id collides with %q", kind, name, prev))
			}
			return
		}
		seen[id] = name
	}

	for _, t := range d.Triggers {
		check("trigger", t.Name)
	}
	for _, p := range d.Parameters {
		check("parameter", p.Name)
	}
	for _, s := range d.Switches {
		check("switch", s.Name)
		states := make(map[ControlID]bool)
		for _, st := range s.States {
			if st.Name == "" {
				errs = append(errs, fmt.Errorf("switch %q: state with empty name", s.Name))
				continue
			}
			id := IDFromName(st.Name)
			if states[id] {
				errs = append(errs, fmt.Errorf("switch %q: state %q defined twice", s.Name, st.Name))
			}
			states[id] = true
		}
	}
	for _, e := range d.Environments {
		check("environment", e.Name)
	}

	triggers := d.TriggerNames()
	for _, name := range d.Preloads {
		if containsFold(triggers, name) {
			continue
		}
		if s, ok := Suggest(name, triggers); ok {
			errs = append(errs, fmt.Errorf("preload %q: %w (did you mean %q?)", name, ErrUnknownControl, s))
		} else {
			errs = append(errs, fmt.Errorf("preload %q: %w", name, ErrUnknownControl))
		}
	}
	return errors.Join(errs...)
}

// Suggest returns the candidate most similar to name, if any is similar
// enough to be a plausible typo.
func Suggest(name string, candidates []string) (string, bool) {
	best, bestScore := "", 0.0
	lower := strings.ToLower(name)
	for _, c := range candidates {
		score := matchr.JaroWinkler(lower, strings.ToLower(c), false)
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	if bestScore < suggestThreshold {
		return "", false
	}
	return best, true
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

type triggerImpl struct {
	id      TriggerImplID
	data    impl.ControlData
	backend impl.Trigger
}

type trigger struct {
	id    ControlID
	name  string
	impls []*triggerImpl
}

type parameter struct {
	id      ControlID
	name    string
	data    impl.ControlData
	backend impl.Parameter
}

type switchState struct {
	id      ControlID
	name    string
	data    impl.ControlData
	backend impl.SwitchState
}

type switchControl struct {
	id     ControlID
	name   string
	states map[ControlID]*switchState
}

type environment struct {
	id      ControlID
	name    string
	data    impl.ControlData
	backend impl.Environment
}

// Controls is the resolved control set bound to the active backend. It is
// owned by the audio goroutine.
type Controls struct {
	def          ControlsDefinition
	triggers     map[ControlID]*trigger
	parameters   map[ControlID]*parameter
	switches     map[ControlID]*switchControl
	environments map[ControlID]*environment
	names        []string
}

// NewControls resolves def. Backend state is constructed separately.
func NewControls(def ControlsDefinition) (*Controls, error) {
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("atl: controls: %w", err)
	}
	c := &Controls{
		def:          def,
		triggers:     make(map[ControlID]*trigger, len(def.Triggers)),
		parameters:   make(map[ControlID]*parameter, len(def.Parameters)),
		switches:     make(map[ControlID]*switchControl, len(def.Switches)),
		environments: make(map[ControlID]*environment, len(def.Environments)),
	}
	for _, td := range def.Triggers {
		t := &trigger{id: IDFromName(td.Name), name: td.Name}
		for i, data := range td.Impls {
			t.impls = append(t.impls, &triggerImpl{id: triggerImplID(td.Name, i), data: data})
		}
		c.triggers[t.id] = t
		c.names = append(c.names, td.Name)
	}
	for _, pd := range def.Parameters {
		p := &parameter{id: IDFromName(pd.Name), name: pd.Name, data: pd.Data}
		c.parameters[p.id] = p
		c.names = append(c.names, pd.Name)
	}
	for _, sd := range def.Switches {
		s := &switchControl{id: IDFromName(sd.Name), name: sd.Name, states: make(map[ControlID]*switchState, len(sd.States))}
		for _, st := range sd.States {
			state := &switchState{id: IDFromName(st.Name), name: st.Name, data: st.Data}
			s.states[state.id] = state
		}
		c.switches[s.id] = s
		c.names = append(c.names, sd.Name)
	}
	for _, ed := range def.Environments {
		e := &environment{id: IDFromName(ed.Name), name: ed.Name, data: ed.Data}
		c.environments[e.id] = e
		c.names = append(c.names, ed.Name)
	}
	sort.Strings(c.names)
	return c, nil
}

// Definition returns the definition c was built from.
func (c *Controls) Definition() ControlsDefinition { return c.def }

// Suggest returns the defined control name closest to name.
func (c *Controls) Suggest(name string) (string, bool) {
	return Suggest(name, c.names)
}

// Name returns the name of the control with the given ID.
func (c *Controls) Name(id ControlID) string {
	if t, ok := c.triggers[id]; ok {
		return t.name
	}
	if p, ok := c.parameters[id]; ok {
		return p.name
	}
	if s, ok := c.switches[id]; ok {
		return s.name
	}
	if e, ok := c.environments[id]; ok {
		return e.name
	}
	return ""
}

// construct creates the backend state of every control. Controls the backend
// rejects stay unbound and fail when used.
func (c *Controls) construct(b impl.Impl, log *slog.Logger) {
	for _, t := range c.triggers {
		for i, ti := range t.impls {
			bt, err := b.ConstructTrigger(ti.data)
			if err != nil {
				log.Warn("backend rejected trigger impl", "trigger", t.name, "index", i, "err", err)
				continue
			}
			ti.backend = bt
		}
	}
	for _, p := range c.parameters {
		bp, err := b.ConstructParameter(p.data)
		if err != nil {
			log.Warn("backend rejected parameter", "parameter", p.name, "err", err)
			continue
		}
		p.backend = bp
	}
	for _, s := range c.switches {
		for _, st := range s.states {
			bs, err := b.ConstructSwitchState(st.data)
			if err != nil {
				log.Warn("backend rejected switch state", "switch", s.name, "state", st.name, "err", err)
				continue
			}
			st.backend = bs
		}
	}
	for _, e := range c.environments {
		be, err := b.ConstructEnvironment(e.data)
		if err != nil {
			log.Warn("backend rejected environment", "environment", e.name, "err", err)
			continue
		}
		e.backend = be
	}
}

// destruct releases all backend state created by construct.
func (c *Controls) destruct(b impl.Impl) {
	for _, t := range c.triggers {
		for _, ti := range t.impls {
			if ti.backend != nil {
				b.DestructTrigger(ti.backend)
				ti.backend = nil
			}
		}
	}
	for _, p := range c.parameters {
		if p.backend != nil {
			b.DestructParameter(p.backend)
			p.backend = nil
		}
	}
	for _, s := range c.switches {
		for _, st := range s.states {
			if st.backend != nil {
				b.DestructSwitchState(st.backend)
				st.backend = nil
			}
		}
	}
	for _, e := range c.environments {
		if e.backend != nil {
			b.DestructEnvironment(e.backend)
			e.backend = nil
		}
	}
}
