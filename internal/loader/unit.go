// Package loader models the host's code-loading units and the classes they
// define. A class is a named piece of code (a Go type or a package) bound to
// the unit that loaded it.
package loader

import (
	"io/fs"
	"testing/fstest"
)

// Kind tells what role a unit plays in the loading hierarchy.
type Kind int

const (
	// KindHost loads the host application itself.
	KindHost Kind = iota
	// KindModules is the host's dedicated module-loading unit. Every plugin
	// unit has it as its parent.
	KindModules
	// KindPlugin is the root unit of one plugin.
	KindPlugin
	// KindChild is any unit a plugin creates below its own.
	KindChild
)

func (k Kind) String() string {
	switch k {
	case KindHost:
		return "host"
	case KindModules:
		return "modules"
	case KindPlugin:
		return "plugin"
	case KindChild:
		return "child"
	default:
		return "unknown"
	}
}

// Unit is a code-loading unit.
type Unit interface {
	Name() string
	Kind() Kind
	// Parent returns the enclosing unit, or nil at the top of the hierarchy.
	Parent() Unit
	// Resources exposes files bundled with the unit's code.
	Resources() fs.FS
}

// Loader is the stock Unit implementation.
type Loader struct {
	name   string
	kind   Kind
	parent Unit
	res    fs.FS
}

// New creates a unit. A nil res means the unit bundles no resources.
func New(name string, kind Kind, parent Unit, res fs.FS) *Loader {
	if res == nil {
		res = fstest.MapFS{}
	}
	return &Loader{name: name, kind: kind, parent: parent, res: res}
}

// NewHost creates the top-level host unit.
func NewHost(res fs.FS) *Loader { return New("host", KindHost, nil, res) }

// NewModules creates the module-loading unit below host.
func NewModules(host Unit) *Loader { return New("modules", KindModules, host, nil) }

func (l *Loader) Name() string     { return l.name }
func (l *Loader) Kind() Kind       { return l.kind }
func (l *Loader) Parent() Unit     { return l.parent }
func (l *Loader) Resources() fs.FS { return l.res }

// Child creates a KindChild unit below l.
func (l *Loader) Child(name string, res fs.FS) *Loader {
	return New(name, KindChild, l, res)
}
