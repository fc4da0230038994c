package loader

import (
	"reflect"
	"strings"
	"sync"

	"modlog/pkg/logapi"
)

// Class is a loadable piece of code: a named Go type, or a whole package.
type Class struct {
	Name string
	Unit Unit
	// Plugin is set when the class is a plugin entry-point type.
	Plugin bool
}

// ClassPath maps class identifiers to classes. Safe for concurrent use.
type ClassPath struct {
	classes sync.Map // string -> Class
}

func NewClassPath() *ClassPath { return &ClassPath{} }

// Define registers cls under cls.Name, replacing any previous definition.
func (c *ClassPath) Define(cls Class) Class {
	c.classes.Store(cls.Name, cls)
	return cls
}

// DefineType registers the named type t (pointers are looked through).
func (c *ClassPath) DefineType(t reflect.Type, u Unit, plugin bool) Class {
	return c.Define(Class{Name: logapi.TypeName(t), Unit: u, Plugin: plugin})
}

// DefinePackage registers a package so frames from its free functions resolve.
func (c *ClassPath) DefinePackage(pkgPath string, u Unit) Class {
	return c.Define(Class{Name: pkgPath, Unit: u})
}

// Lookup returns the class registered under exactly name.
func (c *ClassPath) Lookup(name string) (Class, bool) {
	v, ok := c.classes.Load(name)
	if !ok {
		return Class{}, false
	}
	return v.(Class), true
}

// FrameClass turns a runtime function name into a class identifier:
//
//	example.com/p.(*T).M        -> example.com/p.T
//	example.com/p.T.M           -> example.com/p.T
//	example.com/p.(*T[...]).M   -> example.com/p.T
//	example.com/p.F             -> example.com/p
//	example.com/p.F.func1       -> example.com/p
//	example.com/p.F[...]        -> example.com/p
//	example.com/p.F[...].func1  -> example.com/p
//	example.com/p.T[...].M      -> example.com/p.T
//	gopkg.in/yaml%2ev3.F        -> gopkg.in/yaml.v3
func FrameClass(function string) string {
	if function == "" {
		return ""
	}
	slash := strings.LastIndexByte(function, '/')
	dot := strings.IndexByte(function[slash+1:], '.')
	if dot < 0 {
		return unescapePath(function)
	}
	dot += slash + 1
	pkg := unescapePath(function[:dot])
	rest := function[dot+1:]

	if strings.HasPrefix(rest, "(") {
		end := strings.IndexByte(rest, ')')
		if end < 0 {
			return pkg
		}
		recv := strings.TrimPrefix(rest[1:end], "*")
		if i := strings.IndexByte(recv, '['); i >= 0 {
			recv = recv[:i]
		}
		return pkg + "." + recv
	}

	first, second, ok := strings.Cut(stripTypeArgs(rest), ".")
	if !ok || isClosureName(second) {
		return pkg
	}
	return pkg + "." + first
}

// stripTypeArgs removes instantiation brackets such as "[...]", which may
// contain dots of their own.
func stripTypeArgs(s string) string {
	for {
		i := strings.IndexByte(s, '[')
		if i < 0 {
			return s
		}
		j := strings.IndexByte(s[i:], ']')
		if j < 0 {
			return s[:i]
		}
		s = s[:i] + s[i+j+1:]
	}
}

// PackageOf returns the package part of a class identifier.
func PackageOf(class string) string {
	slash := strings.LastIndexByte(class, '/')
	dot := strings.IndexByte(class[slash+1:], '.')
	if dot < 0 {
		return class
	}
	return class[:slash+1+dot]
}

func isClosureName(s string) bool {
	if strings.HasPrefix(s, "func") || strings.HasPrefix(s, "gowrap") {
		return true
	}
	return s != "" && s[0] >= '0' && s[0] <= '9'
}

func unescapePath(p string) string {
	return strings.ReplaceAll(p, "%2e", ".")
}
