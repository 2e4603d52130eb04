package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/peterh/liner"

	"github.com/willibrandon/MemLab/pkg/analysis"
	"github.com/willibrandon/MemLab/pkg/diff"
	"github.com/willibrandon/MemLab/pkg/history"
	"github.com/willibrandon/MemLab/pkg/memory"
	"github.com/willibrandon/MemLab/pkg/persist"
	"github.com/willibrandon/MemLab/pkg/render"
	"github.com/willibrandon/MemLab/pkg/version"
)

const replHelp = `Commands:
  show                          Print the current snapshot
  types                         Print the type registry
  push <func>                   Push a stack frame
  pop                           Pop the innermost frame
  local <name> <type> [value]   Declare or overwrite a variable in the frame
  param <name> <type> [value]   Declare or overwrite a parameter
  set <name> <value>            Update an existing local
  global <name> <type> [value]  Add a global variable
  setg <name> <value>           Update an existing global
  malloc <size> <type> [value]  Allocate a heap block
  free <addr>                   Free a heap block
  write <addr> <value>          Write to a live heap block
  read <addr>                   Read a live heap block
  pc / sp / bp <addr>           Set a CPU register
  value <addr>                  Report what lives at an address
  pointers <addr>               List pointers holding an address
  paths <addr>                  List root paths keeping a block reachable
  leaks                         Report unreachable live blocks
  diff [<from> <to>]            Show changes between two history entries
  history                       List the timeline
  undo / redo                   Move the history cursor
  seek <n>                      Jump to history entry n
  reset                         Discard everything after the initial state
  save <file> / load <file>     Persist or restore the session
  version                       Print the build version
  quit                          Exit`

// session drives one interactive timeline: every mutating command builds
// a new snapshot from the current one and appends it, so undo and redo
// are pure cursor moves.
type session struct {
	timeline *history.Timeline
	engine   *analysis.Engine
	renderer *render.Renderer
	out      io.Writer
}

func newSession(out io.Writer) (*session, error) {
	initial, err := memory.NewInitialSnapshot(nil, nil, memory.CPUState{})
	if err != nil {
		return nil, err
	}
	engine, err := analysis.NewEngine(analysis.DefaultCacheSize)
	if err != nil {
		return nil, err
	}
	return &session{
		timeline: history.NewTimeline(initial),
		engine:   engine,
		renderer: render.NewRenderer(render.DetectConfig(out)),
		out:      out,
	}, nil
}

func cmdRepl() int {
	s, err := newSession(os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, red("error: "+err.Error()))
		return 1
	}

	fmt.Println("MemLab interactive session")
	fmt.Println("Ctrl+C cancels input, Ctrl+D exits. Type help for commands.")

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigc)
	go func() {
		<-sigc
		ln.Close()
		os.Exit(130)
	}()

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	for {
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			fmt.Println()
			return 0
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, red("error: "+err.Error()))
			return 1
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ln.AppendHistory(line)

		quit, err := s.execute(line)
		if err != nil {
			fmt.Fprintln(os.Stderr, red("error: "+err.Error()))
		}
		if quit {
			return 0
		}
	}
}

// apply runs one mutation against the current snapshot, stamps the step,
// appends the result, and echoes what changed.
func (s *session) apply(mutate func(*memory.SnapshotBuilder) (string, error)) error {
	current := s.timeline.Current()
	b := memory.NewBuilder(current)
	desc, err := mutate(b)
	if err != nil {
		return err
	}
	if err := b.SetStep(s.timeline.Index()+1, desc); err != nil {
		return err
	}
	snap, err := b.Build()
	if err != nil {
		return err
	}
	s.timeline.Append(snap)
	fmt.Fprintln(s.out, desc)
	if changes := diff.Snapshots(current, snap); len(changes) > 0 {
		fmt.Fprintln(s.out, s.renderer.Diff(current, snap, changes))
	}
	return nil
}

func (s *session) printCursor(snap *memory.Snapshot) {
	label := fmt.Sprintf("Step %d", snap.StepID)
	if snap.Description != "" {
		label += ": " + snap.Description
	}
	fmt.Fprintf(s.out, "[%d/%d] %s\n", s.timeline.Index()+1, s.timeline.Len(), label)
}

func (s *session) execute(line string) (quit bool, err error) {
	fields := strings.Fields(line)
	cur := s.timeline.Current()

	switch fields[0] {
	case "help":
		fmt.Fprintln(s.out, replHelp)

	case "quit", "exit":
		return true, nil

	case "version":
		fmt.Fprintln(s.out, version.Info())

	case "show", "print":
		fmt.Fprintln(s.out, s.renderer.Snapshot(cur, false))

	case "types":
		fmt.Fprintln(s.out, s.renderer.Types(cur.Types))

	case "push":
		if len(fields) != 2 {
			return false, errors.New("usage: push <func>")
		}
		return false, s.apply(func(b *memory.SnapshotBuilder) (string, error) {
			if err := b.PushFrame(fields[1], memory.NullAddress); err != nil {
				return "", err
			}
			return "Pushed frame: " + fields[1], nil
		})

	case "pop":
		frame, ok := cur.Stack.Current()
		if !ok {
			return false, memory.ErrEmptyStack
		}
		return false, s.apply(func(b *memory.SnapshotBuilder) (string, error) {
			if err := b.PopFrame(); err != nil {
				return "", err
			}
			return "Popped frame: " + frame.Func, nil
		})

	case "local", "param":
		if len(fields) < 3 {
			return false, fmt.Errorf("usage: %s <name> <type> [value]", fields[0])
		}
		name, typeName := fields[1], fields[2]
		raw := "0"
		if len(fields) > 3 {
			raw = strings.Join(fields[3:], " ")
		}
		value := parseValue(raw, typeName)
		return false, s.apply(func(b *memory.SnapshotBuilder) (string, error) {
			if fields[0] == "param" {
				if err := b.SetParameter(name, value, typeName); err != nil {
					return "", err
				}
				return "Added parameter: " + name, nil
			}
			if err := b.SetLocal(name, value, typeName); err != nil {
				return "", err
			}
			return "Added local: " + name, nil
		})

	case "set":
		if len(fields) < 3 {
			return false, errors.New("usage: set <name> <value>")
		}
		name := fields[1]
		typeName := ""
		if frame, ok := cur.Stack.Current(); ok {
			if v, ok := frame.Variable(name); ok {
				typeName = v.TypeName
			}
		}
		value := parseValue(strings.Join(fields[2:], " "), typeName)
		return false, s.apply(func(b *memory.SnapshotBuilder) (string, error) {
			if err := b.UpdateLocal(name, value); err != nil {
				return "", err
			}
			return fmt.Sprintf("Modified %s = %s", name, value), nil
		})

	case "global":
		if len(fields) < 3 {
			return false, errors.New("usage: global <name> <type> [value]")
		}
		name, typeName := fields[1], fields[2]
		raw := "0"
		if len(fields) > 3 {
			raw = strings.Join(fields[3:], " ")
		}
		addr := memory.Address(0x4000)
		for {
			if _, taken := cur.Globals.ByAddress(addr); !taken {
				break
			}
			addr += 8
		}
		g := memory.GlobalVariable{
			Variable: memory.Variable{
				Name:     name,
				Address:  addr,
				Value:    parseValue(raw, typeName),
				TypeName: typeName,
			},
			Section: ".data",
		}
		return false, s.apply(func(b *memory.SnapshotBuilder) (string, error) {
			if err := b.AddGlobal(g); err != nil {
				return "", err
			}
			return "Added global: " + name, nil
		})

	case "setg":
		if len(fields) < 3 {
			return false, errors.New("usage: setg <name> <value>")
		}
		name := fields[1]
		typeName := ""
		if g, ok := cur.Globals.Variable(name); ok {
			typeName = g.TypeName
		}
		value := parseValue(strings.Join(fields[2:], " "), typeName)
		return false, s.apply(func(b *memory.SnapshotBuilder) (string, error) {
			if err := b.SetGlobal(name, value); err != nil {
				return "", err
			}
			return fmt.Sprintf("Modified global %s = %s", name, value), nil
		})

	case "malloc":
		if len(fields) < 3 {
			return false, errors.New("usage: malloc <size> <type> [value]")
		}
		size, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil || size == 0 {
			return false, fmt.Errorf("invalid size %q", fields[1])
		}
		typeName := fields[2]
		raw := "0"
		if len(fields) > 3 {
			raw = strings.Join(fields[3:], " ")
		}
		value := parseValue(raw, typeName)
		return false, s.apply(func(b *memory.SnapshotBuilder) (string, error) {
			addr, err := b.Malloc(size, typeName, value, "")
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Malloc: %d bytes at %s", size, addr), nil
		})

	case "free":
		if len(fields) != 2 {
			return false, errors.New("usage: free <addr>")
		}
		addr, err := parseAddress(fields[1])
		if err != nil {
			return false, err
		}
		return false, s.apply(func(b *memory.SnapshotBuilder) (string, error) {
			if err := b.Free(addr); err != nil {
				return "", err
			}
			return fmt.Sprintf("Freed memory at %s", addr), nil
		})

	case "write":
		if len(fields) < 3 {
			return false, errors.New("usage: write <addr> <value>")
		}
		addr, err := parseAddress(fields[1])
		if err != nil {
			return false, err
		}
		typeName := ""
		if blk, ok := cur.Heap.Block(addr); ok {
			typeName = blk.TypeName
		}
		value := parseValue(strings.Join(fields[2:], " "), typeName)
		return false, s.apply(func(b *memory.SnapshotBuilder) (string, error) {
			if err := b.WriteHeap(addr, value); err != nil {
				return "", err
			}
			return fmt.Sprintf("Wrote to heap at %s", addr), nil
		})

	case "read":
		if len(fields) != 2 {
			return false, errors.New("usage: read <addr>")
		}
		addr, err := parseAddress(fields[1])
		if err != nil {
			return false, err
		}
		v, err := memory.NewBuilder(cur).ReadHeap(addr)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "%s = %s\n", addr, v)

	case "pc", "sp", "bp":
		if len(fields) != 2 {
			return false, fmt.Errorf("usage: %s <addr>", fields[0])
		}
		addr, err := parseAddress(fields[1])
		if err != nil {
			return false, err
		}
		reg := fields[0]
		return false, s.apply(func(b *memory.SnapshotBuilder) (string, error) {
			set := b.SetBP
			switch reg {
			case "pc":
				set = b.SetPC
			case "sp":
				set = b.SetSP
			}
			if err := set(addr); err != nil {
				return "", err
			}
			return fmt.Sprintf("Set %s = %s", strings.ToUpper(reg), addr), nil
		})

	case "value":
		if len(fields) != 2 {
			return false, errors.New("usage: value <addr>")
		}
		addr, err := parseAddress(fields[1])
		if err != nil {
			return false, err
		}
		if v, loc, ok := s.engine.ValueAtAddress(cur, addr); ok {
			fmt.Fprintf(s.out, "%s = %s (%s)\n", addr, v, loc)
		} else {
			fmt.Fprintf(s.out, "Nothing recorded at %s\n", addr)
		}

	case "pointers":
		if len(fields) != 2 {
			return false, errors.New("usage: pointers <addr>")
		}
		addr, err := parseAddress(fields[1])
		if err != nil {
			return false, err
		}
		refs := s.engine.PointersTo(cur, addr)
		if len(refs) == 0 {
			fmt.Fprintf(s.out, "No pointers to %s\n", addr)
		}
		for _, ref := range refs {
			fmt.Fprintln(s.out, "  "+ref.String())
		}

	case "paths":
		if len(fields) != 2 {
			return false, errors.New("usage: paths <addr>")
		}
		addr, err := parseAddress(fields[1])
		if err != nil {
			return false, err
		}
		paths := analysis.PathsToBlock(cur, addr, 16)
		if len(paths) == 0 {
			fmt.Fprintf(s.out, "No root paths to %s\n", addr)
		}
		for _, p := range paths {
			fmt.Fprintln(s.out, "  "+p.String())
		}

	case "leaks":
		leaks := analysis.FindLeaks(cur, analysis.ReachableAddresses(cur, true))
		if len(leaks) == 0 {
			fmt.Fprintln(s.out, "No leaks detected")
			return false, nil
		}
		var total uint64
		for _, blk := range leaks {
			total += blk.Size
		}
		fmt.Fprintf(s.out, "%d leaked block(s), %d bytes total\n", len(leaks), total)
		for _, blk := range leaks {
			fmt.Fprintf(s.out, "  %s  %d bytes  %s\n", blk.Address, blk.Size, blk.TypeName)
		}

	case "diff":
		var from, to *memory.Snapshot
		switch {
		case len(fields) == 3:
			a, errA := strconv.Atoi(fields[1])
			b, errB := strconv.Atoi(fields[2])
			if errA != nil || errB != nil {
				return false, errors.New("usage: diff [<from> <to>]")
			}
			if from, err = s.timeline.At(a); err != nil {
				return false, err
			}
			if to, err = s.timeline.At(b); err != nil {
				return false, err
			}
		case s.timeline.Index() == 0:
			fmt.Fprintln(s.out, "At the initial state")
			return false, nil
		default:
			if from, err = s.timeline.At(s.timeline.Index() - 1); err != nil {
				return false, err
			}
			to = cur
		}
		fmt.Fprintln(s.out, s.renderer.Diff(from, to, diff.Snapshots(from, to)))

	case "history":
		for i, snap := range s.timeline.Snapshots() {
			marker := " "
			if i == s.timeline.Index() {
				marker = "*"
			}
			label := fmt.Sprintf("Step %d", snap.StepID)
			if snap.Description != "" {
				label += ": " + snap.Description
			}
			fmt.Fprintf(s.out, "%s %2d  %s\n", marker, i, label)
		}

	case "undo":
		snap, err := s.timeline.Back()
		if err != nil {
			fmt.Fprintln(s.out, "Nothing to undo")
			return false, nil
		}
		s.printCursor(snap)

	case "redo":
		snap, err := s.timeline.Forward()
		if err != nil {
			fmt.Fprintln(s.out, "Nothing to redo")
			return false, nil
		}
		s.printCursor(snap)

	case "seek":
		if len(fields) != 2 {
			return false, errors.New("usage: seek <n>")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return false, fmt.Errorf("invalid index %q", fields[1])
		}
		snap, err := s.timeline.Seek(n)
		if err != nil {
			return false, err
		}
		s.printCursor(snap)

	case "reset":
		s.timeline.Reset()
		fmt.Fprintln(s.out, "Reset to initial state")

	case "save":
		if len(fields) != 2 {
			return false, errors.New("usage: save <file>")
		}
		if err := persist.SaveTimeline(fields[1], s.timeline, persist.DefaultCompression); err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "Saved %d snapshot(s) to %s\n", s.timeline.Len(), fields[1])

	case "load":
		if len(fields) != 2 {
			return false, errors.New("usage: load <file>")
		}
		tl, err := persist.LoadTimeline(fields[1])
		if err != nil {
			return false, err
		}
		s.timeline = tl
		fmt.Fprintf(s.out, "Loaded %d snapshot(s) from %s\n", tl.Len(), fields[1])
		s.printCursor(tl.Current())

	default:
		return false, fmt.Errorf("unknown command %q, type help for commands", fields[0])
	}

	return false, nil
}

// parseValue turns REPL input into a model value using the declared type
// as a hint: "null" is a null pointer, a hex literal against a pointer
// type is a pointer, numbers parse as int or float, everything else is
// text.
func parseValue(raw, typeName string) memory.Value {
	raw = strings.TrimSpace(raw)
	target := strings.TrimSpace(strings.ReplaceAll(typeName, "*", ""))

	if strings.EqualFold(raw, "null") {
		return memory.NullPointer(target)
	}
	if strings.Contains(typeName, "*") && strings.HasPrefix(raw, "0x") {
		if addr, err := strconv.ParseUint(raw[2:], 16, 64); err == nil {
			return memory.PointerTo(memory.Address(addr), target)
		}
	}
	if strings.Contains(raw, ".") {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return memory.Float(f)
		}
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return memory.Int(n)
	}
	return memory.Text(strings.Trim(raw, `"`))
}

// parseAddress accepts hex with a 0x prefix or plain decimal.
func parseAddress(raw string) (memory.Address, error) {
	digits, base := raw, 10
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		digits, base = raw[2:], 16
	}
	n, err := strconv.ParseUint(digits, base, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", raw)
	}
	return memory.Address(n), nil
}
