package skills

import "context"

// ExecutorBackref is the narrow back-reference a skill invocation uses to
// re-evaluate a skill's Lua source against the live executor, per spec §9
// Design Note 9. Concrete executors implement this single method; Library
// holds only the interface, never a concrete executor type, which is what
// avoids an import cycle between pkg/session, pkg/executor, and
// pkg/skills.
type ExecutorBackref interface {
	EvalSkill(ctx context.Context, source string, params map[string]any) (any, error)
}

// Invoke loads skill name and evaluates its source against backref with
// params bound as the call's arguments.
func (l *Library) Invoke(ctx context.Context, backref ExecutorBackref, name string, params map[string]any) (any, error) {
	skill, err := l.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return backref.EvalSkill(ctx, skill.Source, params)
}
