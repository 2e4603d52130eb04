package render

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// Config controls console rendering.
type Config struct {
	// PointerArrow is the symbol drawn before pointer targets.
	PointerArrow string

	// HexAddresses displays addresses in hexadecimal.
	HexAddresses bool

	// MaxStructDepth bounds how many nesting levels of struct values are
	// expanded before eliding the rest.
	MaxStructDepth int

	// IndentSize is the number of spaces per indentation level.
	IndentSize int

	// ShowFramePointers displays each frame's base pointer.
	ShowFramePointers bool

	// Compact suppresses secondary lines such as allocation sites.
	Compact bool
}

// DefaultConfig returns the configuration for an interactive terminal.
func DefaultConfig() Config {
	return Config{
		PointerArrow:      "→",
		HexAddresses:      true,
		MaxStructDepth:    2,
		IndentSize:        2,
		ShowFramePointers: true,
	}
}

// DetectConfig picks a configuration for w: terminals keep the Unicode
// pointer arrow, everything else falls back to plain ASCII.
func DetectConfig(w io.Writer) Config {
	cfg := DefaultConfig()
	f, ok := w.(*os.File)
	if !ok || (!isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())) {
		cfg.PointerArrow = "->"
	}
	return cfg
}
