package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/willibrandon/MemLab/pkg/analysis"
	"github.com/willibrandon/MemLab/pkg/diff"
	"github.com/willibrandon/MemLab/pkg/history"
	"github.com/willibrandon/MemLab/pkg/memory"
	"github.com/willibrandon/MemLab/pkg/render"
)

// A scenario file declares types and globals, then a list of steps with
// one operation each. Values are plain YAML scalars or mappings (struct
// literals); "$name" references the address bound by an earlier malloc
// step's var key. An optional render block overrides the detected
// console settings.
type scenarioFile struct {
	Description string          `yaml:"description,omitempty"`
	Types       *scenarioTypes  `yaml:"types,omitempty"`
	Globals     []scenarioVar   `yaml:"globals,omitempty"`
	Render      *scenarioRender `yaml:"render,omitempty"`
	Steps       []scenarioStep  `yaml:"steps"`
}

// scenarioRender holds per-file render overrides. Fields are pointers
// so that absent keys keep the detected defaults.
type scenarioRender struct {
	PointerArrow      *string `yaml:"pointerArrow,omitempty"`
	HexAddresses      *bool   `yaml:"hexAddresses,omitempty"`
	MaxStructDepth    *int    `yaml:"maxStructDepth,omitempty"`
	IndentSize        *int    `yaml:"indentSize,omitempty"`
	ShowFramePointers *bool   `yaml:"showFramePointers,omitempty"`
	Compact           *bool   `yaml:"compact,omitempty"`
}

func (s *scenarioRender) apply(cfg *render.Config) {
	if s.PointerArrow != nil {
		cfg.PointerArrow = *s.PointerArrow
	}
	if s.HexAddresses != nil {
		cfg.HexAddresses = *s.HexAddresses
	}
	if s.MaxStructDepth != nil {
		cfg.MaxStructDepth = *s.MaxStructDepth
	}
	if s.IndentSize != nil {
		cfg.IndentSize = *s.IndentSize
	}
	if s.ShowFramePointers != nil {
		cfg.ShowFramePointers = *s.ShowFramePointers
	}
	if s.Compact != nil {
		cfg.Compact = *s.Compact
	}
}

type scenarioTypes struct {
	Structs  []scenarioStruct  `yaml:"structs,omitempty"`
	Unions   []scenarioStruct  `yaml:"unions,omitempty"`
	Typedefs []scenarioTypedef `yaml:"typedefs,omitempty"`
}

type scenarioStruct struct {
	Name   string          `yaml:"name"`
	Size   int             `yaml:"size"`
	Fields []scenarioField `yaml:"fields,omitempty"`
}

type scenarioField struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Offset int    `yaml:"offset,omitempty"`
}

type scenarioTypedef struct {
	Alias string `yaml:"alias"`
	Type  string `yaml:"type"`
}

type scenarioVar struct {
	Name    string    `yaml:"name"`
	Type    string    `yaml:"type"`
	Value   yaml.Node `yaml:"value,omitempty"`
	Address yaml.Node `yaml:"address,omitempty"`
	Static  bool      `yaml:"static,omitempty"`
	Section string    `yaml:"section,omitempty"`
}

type scenarioAssign struct {
	Name  string    `yaml:"name"`
	Value yaml.Node `yaml:"value"`
}

type scenarioMalloc struct {
	Var   string    `yaml:"var,omitempty"`
	Size  uint64    `yaml:"size"`
	Type  string    `yaml:"type"`
	Value yaml.Node `yaml:"value,omitempty"`
	Site  string    `yaml:"site,omitempty"`
	At    yaml.Node `yaml:"at,omitempty"`
}

type scenarioWrite struct {
	To    yaml.Node `yaml:"to"`
	Value yaml.Node `yaml:"value"`
}

type scenarioCPU struct {
	PC yaml.Node `yaml:"pc,omitempty"`
	SP yaml.Node `yaml:"sp,omitempty"`
	BP yaml.Node `yaml:"bp,omitempty"`
}

type scenarioStep struct {
	Describe string `yaml:"describe,omitempty"`

	Push      string          `yaml:"push,omitempty"`
	Pop       bool            `yaml:"pop,omitempty"`
	Local     *scenarioVar    `yaml:"local,omitempty"`
	Param     *scenarioVar    `yaml:"param,omitempty"`
	Set       *scenarioAssign `yaml:"set,omitempty"`
	Global    *scenarioVar    `yaml:"global,omitempty"`
	SetGlobal *scenarioAssign `yaml:"setGlobal,omitempty"`
	Malloc    *scenarioMalloc `yaml:"malloc,omitempty"`
	Free      yaml.Node       `yaml:"free,omitempty"`
	Write     *scenarioWrite  `yaml:"write,omitempty"`
	CPU       *scenarioCPU    `yaml:"cpu,omitempty"`
}

// RunScenario replays a scenario file against a fresh timeline, printing
// the initial state, each step's changes, the final state, and a leak
// report.
func RunScenario(path string, out io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var sc scenarioFile
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if len(sc.Steps) == 0 {
		return fmt.Errorf("%s: scenario has no steps", path)
	}
	r, err := newScenarioRunner(&sc, out)
	if err != nil {
		return err
	}
	return r.run(&sc)
}

type scenarioRunner struct {
	timeline *history.Timeline
	renderer *render.Renderer
	types    *memory.TypeRegistry
	bindings map[string]memory.Address
	out      io.Writer
}

func newScenarioRunner(sc *scenarioFile, out io.Writer) (*scenarioRunner, error) {
	cfg := render.DetectConfig(out)
	if sc.Render != nil {
		sc.Render.apply(&cfg)
	}
	r := &scenarioRunner{
		renderer: render.NewRenderer(cfg),
		types:    memory.NewTypeRegistry(),
		bindings: make(map[string]memory.Address),
		out:      out,
	}

	if sc.Types != nil {
		for _, s := range sc.Types.Structs {
			r.types.RegisterStruct(memory.StructDescriptor{
				Name:   s.Name,
				Size:   s.Size,
				Fields: descriptorFields(s.Fields),
			})
		}
		for _, u := range sc.Types.Unions {
			r.types.RegisterUnion(memory.UnionDescriptor{
				Name:   u.Name,
				Size:   u.Size,
				Fields: descriptorFields(u.Fields),
			})
		}
		for _, td := range sc.Types.Typedefs {
			r.types.RegisterTypedef(td.Alias, td.Type)
		}
	}

	globals, err := r.declareGlobals(sc.Globals)
	if err != nil {
		return nil, err
	}
	initial, err := memory.NewInitialSnapshot(globals, r.types, memory.CPUState{})
	if err != nil {
		return nil, err
	}
	r.timeline = history.NewTimeline(initial)
	return r, nil
}

func descriptorFields(fields []scenarioField) []memory.FieldDescriptor {
	out := make([]memory.FieldDescriptor, 0, len(fields))
	for _, f := range fields {
		out = append(out, memory.FieldDescriptor{Name: f.Name, TypeName: f.Type, Offset: f.Offset})
	}
	return out
}

// declareGlobals assigns addresses to the declared globals: explicit when
// given, otherwise the first free slot from 0x4000 upward in steps of 8.
func (r *scenarioRunner) declareGlobals(vars []scenarioVar) ([]memory.GlobalVariable, error) {
	taken := make(map[memory.Address]bool)
	var out []memory.GlobalVariable
	for i := range vars {
		v := &vars[i]
		var addr memory.Address
		if !v.Address.IsZero() {
			a, err := r.address(&v.Address)
			if err != nil {
				return nil, fmt.Errorf("global %q: %w", v.Name, err)
			}
			addr = a
		} else {
			addr = 0x4000
			for taken[addr] {
				addr += 8
			}
		}
		taken[addr] = true

		value := memory.Int(0)
		if !v.Value.IsZero() {
			parsed, err := r.value(&v.Value, v.Type)
			if err != nil {
				return nil, fmt.Errorf("global %q: %w", v.Name, err)
			}
			value = parsed
		}
		storage := memory.StorageGlobal
		if v.Static {
			storage = memory.StorageStatic
		}
		section := v.Section
		if section == "" {
			section = ".data"
		}
		out = append(out, memory.GlobalVariable{
			Variable: memory.Variable{
				Name:     v.Name,
				Address:  addr,
				Value:    value,
				TypeName: v.Type,
			},
			Storage: storage,
			Section: section,
		})
	}
	return out, nil
}

func (r *scenarioRunner) run(sc *scenarioFile) error {
	if sc.Description != "" {
		fmt.Fprintf(r.out, "Scenario: %s\n\n", sc.Description)
	}
	fmt.Fprintln(r.out, r.renderer.Snapshot(r.timeline.Current(), true))

	for i := range sc.Steps {
		step := &sc.Steps[i]
		current := r.timeline.Current()
		b := memory.NewBuilder(current)

		desc, err := r.applyStep(b, current, step)
		if err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		if step.Describe != "" {
			desc = step.Describe
		}
		if err := b.SetStep(r.timeline.Index()+1, desc); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		snap, err := b.Build()
		if err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		r.timeline.Append(snap)

		fmt.Fprintln(r.out)
		fmt.Fprintf(r.out, "Step %d: %s\n", snap.StepID, snap.Description)
		fmt.Fprintln(r.out, r.renderer.Diff(current, snap, diff.Snapshots(current, snap)))
	}

	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, r.renderer.Snapshot(r.timeline.Current(), false))
	fmt.Fprintln(r.out)
	r.reportLeaks()
	return nil
}

// applyStep runs the step's single operation against the builder and
// returns the step description.
func (r *scenarioRunner) applyStep(b *memory.SnapshotBuilder, current *memory.Snapshot, step *scenarioStep) (string, error) {
	switch {
	case step.Push != "":
		if err := b.PushFrame(step.Push, memory.NullAddress); err != nil {
			return "", err
		}
		return "Pushed frame: " + step.Push, nil

	case step.Pop:
		frame, ok := current.Stack.Current()
		if !ok {
			return "", memory.ErrEmptyStack
		}
		if err := b.PopFrame(); err != nil {
			return "", err
		}
		return "Popped frame: " + frame.Func, nil

	case step.Local != nil:
		value, err := r.varValue(step.Local)
		if err != nil {
			return "", err
		}
		if err := b.SetLocal(step.Local.Name, value, step.Local.Type); err != nil {
			return "", err
		}
		return "Added local: " + step.Local.Name, nil

	case step.Param != nil:
		value, err := r.varValue(step.Param)
		if err != nil {
			return "", err
		}
		if err := b.SetParameter(step.Param.Name, value, step.Param.Type); err != nil {
			return "", err
		}
		return "Added parameter: " + step.Param.Name, nil

	case step.Set != nil:
		typeName := ""
		if frame, ok := current.Stack.Current(); ok {
			if v, ok := frame.Variable(step.Set.Name); ok {
				typeName = v.TypeName
			}
		}
		value, err := r.value(&step.Set.Value, typeName)
		if err != nil {
			return "", err
		}
		if err := b.UpdateLocal(step.Set.Name, value); err != nil {
			return "", err
		}
		return fmt.Sprintf("Modified %s = %s", step.Set.Name, value), nil

	case step.Global != nil:
		declared, err := r.declareGlobals([]scenarioVar{*step.Global})
		if err != nil {
			return "", err
		}
		g := declared[0]
		for {
			if _, taken := current.Globals.ByAddress(g.Address); !taken {
				break
			}
			g.Address += 8
		}
		if err := b.AddGlobal(g); err != nil {
			return "", err
		}
		return "Added global: " + g.Name, nil

	case step.SetGlobal != nil:
		typeName := ""
		if g, ok := current.Globals.Variable(step.SetGlobal.Name); ok {
			typeName = g.TypeName
		}
		value, err := r.value(&step.SetGlobal.Value, typeName)
		if err != nil {
			return "", err
		}
		if err := b.SetGlobal(step.SetGlobal.Name, value); err != nil {
			return "", err
		}
		return fmt.Sprintf("Modified global %s = %s", step.SetGlobal.Name, value), nil

	case step.Malloc != nil:
		m := step.Malloc
		value, err := r.value(&m.Value, m.Type)
		if err != nil {
			return "", err
		}
		var addr memory.Address
		if !m.At.IsZero() {
			at, err := r.address(&m.At)
			if err != nil {
				return "", err
			}
			addr, err = b.MallocAt(at, m.Size, m.Type, value, m.Site)
			if err != nil {
				return "", err
			}
		} else {
			addr, err = b.Malloc(m.Size, m.Type, value, m.Site)
			if err != nil {
				return "", err
			}
		}
		if m.Var != "" {
			r.bindings[m.Var] = addr
		}
		return fmt.Sprintf("Malloc: %d bytes at %s", m.Size, addr), nil

	case !step.Free.IsZero():
		addr, err := r.address(&step.Free)
		if err != nil {
			return "", err
		}
		if err := b.Free(addr); err != nil {
			return "", err
		}
		return fmt.Sprintf("Freed memory at %s", addr), nil

	case step.Write != nil:
		addr, err := r.address(&step.Write.To)
		if err != nil {
			return "", err
		}
		typeName := ""
		if blk, ok := current.Heap.Block(addr); ok {
			typeName = blk.TypeName
		}
		value, err := r.value(&step.Write.Value, typeName)
		if err != nil {
			return "", err
		}
		if err := b.WriteHeap(addr, value); err != nil {
			return "", err
		}
		return fmt.Sprintf("Wrote to heap at %s", addr), nil

	case step.CPU != nil:
		set := func(node *yaml.Node, apply func(memory.Address) error) error {
			if node.IsZero() {
				return nil
			}
			addr, err := r.address(node)
			if err != nil {
				return err
			}
			return apply(addr)
		}
		if err := set(&step.CPU.PC, b.SetPC); err != nil {
			return "", err
		}
		if err := set(&step.CPU.SP, b.SetSP); err != nil {
			return "", err
		}
		if err := set(&step.CPU.BP, b.SetBP); err != nil {
			return "", err
		}
		return "CPU state updated", nil
	}

	return "", errors.New("step has no operation")
}

func (r *scenarioRunner) varValue(v *scenarioVar) (memory.Value, error) {
	if v.Value.IsZero() {
		return memory.Int(0), nil
	}
	return r.value(&v.Value, v.Type)
}

// value converts a YAML node using the declared type as a hint. Scalars
// follow their YAML tag; "$name" becomes a pointer to a bound address;
// null becomes a null pointer of the target type; mappings become struct
// values with per-field types looked up in the registry.
func (r *scenarioRunner) value(node *yaml.Node, typeName string) (memory.Value, error) {
	if node == nil || node.IsZero() {
		return memory.Value{}, nil
	}
	target := strings.TrimSpace(strings.ReplaceAll(typeName, "*", ""))

	switch node.Kind {
	case yaml.ScalarNode:
		switch node.Tag {
		case "!!null":
			return memory.NullPointer(target), nil
		case "!!int":
			n, err := strconv.ParseInt(node.Value, 0, 64)
			if err != nil {
				return memory.Value{}, fmt.Errorf("line %d: invalid integer %q", node.Line, node.Value)
			}
			if strings.Contains(typeName, "*") {
				return memory.PointerTo(memory.Address(n), target), nil
			}
			return memory.Int(n), nil
		case "!!float":
			f, err := strconv.ParseFloat(node.Value, 64)
			if err != nil {
				return memory.Value{}, fmt.Errorf("line %d: invalid float %q", node.Line, node.Value)
			}
			return memory.Float(f), nil
		case "!!bool":
			v, err := strconv.ParseBool(node.Value)
			if err != nil {
				return memory.Value{}, fmt.Errorf("line %d: invalid bool %q", node.Line, node.Value)
			}
			return memory.Bool(v), nil
		default:
			s := node.Value
			if strings.HasPrefix(s, "$") {
				addr, ok := r.bindings[s[1:]]
				if !ok {
					return memory.Value{}, fmt.Errorf("line %d: unknown binding %q", node.Line, s)
				}
				return memory.PointerTo(addr, target), nil
			}
			if strings.EqualFold(s, "null") {
				return memory.NullPointer(target), nil
			}
			return memory.Text(s), nil
		}

	case yaml.MappingNode:
		fieldTypes := r.fieldTypes(typeName)
		fields := make([]memory.Field, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			name := node.Content[i].Value
			fv, err := r.value(node.Content[i+1], fieldTypes[name])
			if err != nil {
				return memory.Value{}, err
			}
			fields = append(fields, memory.Field{Name: name, Value: fv})
		}
		return memory.StructOf(fields...), nil
	}

	return memory.Value{}, fmt.Errorf("line %d: unsupported value", node.Line)
}

// fieldTypes resolves typeName through the registry and returns the field
// name to type mapping of the underlying struct or union, if any.
func (r *scenarioRunner) fieldTypes(typeName string) map[string]string {
	out := make(map[string]string)
	base := strings.TrimSpace(strings.ReplaceAll(typeName, "*", ""))
	resolved, err := r.types.Resolve(base)
	if err != nil {
		resolved = base
	}
	if desc, ok := r.types.Structs[resolved]; ok {
		for _, f := range desc.Fields {
			out[f.Name] = f.TypeName
		}
	}
	if desc, ok := r.types.Unions[resolved]; ok {
		for _, f := range desc.Fields {
			out[f.Name] = f.TypeName
		}
	}
	return out
}

// address resolves a scalar node to an address: "$name" through the
// malloc bindings, otherwise hex or decimal.
func (r *scenarioRunner) address(node *yaml.Node) (memory.Address, error) {
	if node == nil || node.Kind != yaml.ScalarNode {
		return 0, errors.New("expected an address")
	}
	if strings.HasPrefix(node.Value, "$") {
		addr, ok := r.bindings[node.Value[1:]]
		if !ok {
			return 0, fmt.Errorf("line %d: unknown binding %q", node.Line, node.Value)
		}
		return addr, nil
	}
	return parseAddress(node.Value)
}

func (r *scenarioRunner) reportLeaks() {
	cur := r.timeline.Current()
	leaks := analysis.FindLeaks(cur, analysis.ReachableAddresses(cur, true))
	if len(leaks) == 0 {
		fmt.Fprintln(r.out, "No leaks detected")
		return
	}
	var total uint64
	for _, blk := range leaks {
		total += blk.Size
	}
	fmt.Fprintf(r.out, "%d leaked block(s), %d bytes total\n", len(leaks), total)
	for _, blk := range leaks {
		fmt.Fprintf(r.out, "  %s  %d bytes  %s\n", blk.Address, blk.Size, blk.TypeName)
	}
}
