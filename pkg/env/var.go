// Package env provides a centralized, self-registering registry for the
// environment variables this service honors. Calling any Register* function
// records the variable's metadata (name, default, description, type,
// component) in a process-wide registry and returns a typed accessor, so
// ExportMarkdown can document every variable without a hand-maintained
// list.
package env

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// VarType identifies the data type of an environment variable.
type VarType int

const (
	TypeString VarType = iota
	TypeBool
	TypeInt
	TypeDuration
)

func (v VarType) String() string {
	switch v {
	case TypeString:
		return "String"
	case TypeBool:
		return "Boolean"
	case TypeInt:
		return "Integer"
	case TypeDuration:
		return "Duration"
	default:
		return "Unknown"
	}
}

func (v VarType) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

// Component identifies which part of the service consumes the variable.
type Component string

const (
	ComponentContainer Component = "container-server"
	ComponentStorage   Component = "storage"
	ComponentCLI       Component = "storectl"
)

// Var holds metadata for a single registered environment variable.
type Var struct {
	Name         string    `json:"name"`
	DefaultValue string    `json:"default"`
	Description  string    `json:"description"`
	Type         VarType   `json:"type"`
	Component    Component `json:"component"`
}

var (
	allVars = make(map[string]Var)
	mu      sync.Mutex
)

func register(v Var) {
	mu.Lock()
	defer mu.Unlock()
	allVars[v.Name] = v
}

// VarDescriptions returns all registered variables sorted by name.
func VarDescriptions() []Var {
	mu.Lock()
	defer mu.Unlock()
	out := make([]Var, 0, len(allVars))
	for _, v := range allVars {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b Var) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// StringVar is a registered environment variable holding a string value.
type StringVar struct{ v Var }

func RegisterStringVar(name, defaultValue, description string, component Component) StringVar {
	v := Var{Name: name, DefaultValue: defaultValue, Description: description, Type: TypeString, Component: component}
	register(v)
	return StringVar{v: v}
}

func (s StringVar) Get() string {
	if val, ok := os.LookupEnv(s.v.Name); ok {
		return val
	}
	return s.v.DefaultValue
}

func (s StringVar) Name() string { return s.v.Name }

// BoolVar is a registered environment variable holding a boolean value.
type BoolVar struct {
	v            Var
	defaultValue bool
}

func RegisterBoolVar(name string, defaultValue bool, description string, component Component) BoolVar {
	v := Var{Name: name, DefaultValue: strconv.FormatBool(defaultValue), Description: description, Type: TypeBool, Component: component}
	register(v)
	return BoolVar{v: v, defaultValue: defaultValue}
}

func (b BoolVar) Get() bool {
	if val, ok := os.LookupEnv(b.v.Name); ok {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return b.defaultValue
}

func (b BoolVar) Name() string { return b.v.Name }

// IntVar is a registered environment variable holding an integer value.
type IntVar struct {
	v            Var
	defaultValue int
}

func RegisterIntVar(name string, defaultValue int, description string, component Component) IntVar {
	v := Var{Name: name, DefaultValue: strconv.Itoa(defaultValue), Description: description, Type: TypeInt, Component: component}
	register(v)
	return IntVar{v: v, defaultValue: defaultValue}
}

func (i IntVar) Get() int {
	if val, ok := os.LookupEnv(i.v.Name); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return i.defaultValue
}

func (i IntVar) Name() string { return i.v.Name }

// DurationVar is a registered environment variable holding a time.Duration.
type DurationVar struct {
	v            Var
	defaultValue time.Duration
}

func RegisterDurationVar(name string, defaultValue time.Duration, description string, component Component) DurationVar {
	v := Var{Name: name, DefaultValue: defaultValue.String(), Description: description, Type: TypeDuration, Component: component}
	register(v)
	return DurationVar{v: v, defaultValue: defaultValue}
}

func (d DurationVar) Get() time.Duration {
	if val, ok := os.LookupEnv(d.v.Name); ok {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return d.defaultValue
}

func (d DurationVar) Name() string { return d.v.Name }

// ExportMarkdown renders all registered variables, optionally filtered by
// component, as a markdown table grouped by component.
func ExportMarkdown(component string) string {
	vars := VarDescriptions()
	var sb strings.Builder
	sb.WriteString("# codemode environment variables\n\n")

	grouped := make(map[Component][]Var)
	for _, v := range vars {
		if component != "" && component != "all" && string(v.Component) != component {
			continue
		}
		grouped[v.Component] = append(grouped[v.Component], v)
	}

	comps := make([]Component, 0, len(grouped))
	for c := range grouped {
		comps = append(comps, c)
	}
	slices.SortFunc(comps, func(a, b Component) int { return cmp.Compare(string(a), string(b)) })

	for _, comp := range comps {
		fmt.Fprintf(&sb, "## %s\n\n", comp)
		sb.WriteString("| Variable | Type | Default | Description |\n")
		sb.WriteString("|----------|------|---------|-------------|\n")
		for _, v := range grouped[comp] {
			def := v.DefaultValue
			if def == "" {
				def = "(none)"
			}
			fmt.Fprintf(&sb, "| `%s` | %s | `%s` | %s |\n", v.Name, v.Type, def, v.Description)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
