// Package skills implements the skill library of spec §4.4: Lua-source
// skills backed by a storage.SkillSourceStore and searched through a
// vectorindex.Index (or an in-memory cosine fallback when none is
// configured).
package skills

import (
	"regexp"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/kagent-dev/codemode/pkg/errs"
)

// Skill is one persisted, named piece of Lua source exposing a `run`
// function, plus its human-readable description (the file's leading
// comment block, per the file storage convention).
type Skill struct {
	Name        string
	Description string
	Source      string
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var reservedNames = map[string]bool{
	"tools": true, "skills": true, "artifacts": true, "deps": true, "run": true,
}

// maxNameLength is the length bound spec.md requires every skill name stay
// within.
const maxNameLength = 64

// ValidateName enforces spec §4.4's identifier, length-bound, and
// reserved-name rules.
func ValidateName(name string) error {
	if !identifierPattern.MatchString(name) {
		return errs.New(errs.InvalidName, "ValidateName", "not a valid identifier: "+name)
	}
	if len(name) > maxNameLength {
		return errs.New(errs.InvalidName, "ValidateName", "exceeds maximum length of 64: "+name)
	}
	if reservedNames[name] {
		return errs.New(errs.InvalidName, "ValidateName", "reserved namespace name: "+name)
	}
	return nil
}

// ValidateSource parses source as Lua and checks that it defines a global
// function named `run`, per spec §4.4's creation-time validation.
func ValidateSource(source string) error {
	chunk, err := parseLua(source)
	if err != nil {
		return errs.Wrap(errs.InvalidSource, "ValidateSource", "parse error", err)
	}

	state := lua.NewState()
	defer state.Close()
	if err := state.DoString(source); err != nil {
		return errs.Wrap(errs.InvalidSource, "ValidateSource", "evaluation error", err)
	}
	fn := state.GetGlobal("run")
	if fn.Type() != lua.LTFunction {
		return errs.New(errs.InvalidSource, "ValidateSource", "source must define a function named run")
	}
	_ = chunk
	return nil
}

func parseLua(source string) (*lua.FunctionProto, error) {
	chunk, err := lua.Parse(strings.NewReader(source), "<skill>")
	if err != nil {
		return nil, err
	}
	proto, err := lua.Compile(chunk, "<skill>")
	if err != nil {
		return nil, err
	}
	return proto, nil
}
