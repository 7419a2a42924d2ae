// Package gate decides whether an account may reach a path or must be sent
// to the preview surface. Decisions are pure functions of the account state
// and the path; callers supply a freshly read profile on every request.
package gate

// Outcome of a gate decision
type Outcome string

const (
	Allow    Outcome = "allow"
	Redirect Outcome = "redirect"
)

// PathClass is the route class a path falls in for preview-mode accounts
type PathClass string

const (
	ClassPublic            PathClass = "public"
	ClassShell             PathClass = "shell"
	ClassProfileCompletion PathClass = "profile_completion"
	ClassProtected         PathClass = "protected"
	ClassUnclassified      PathClass = "unclassified"
)

// Reason records which rule produced a decision.
type Reason string

const (
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonStaff           Reason = "staff"
	ReasonFullAccess      Reason = "full_access"
	ReasonPathClass       Reason = "path_class"
)

// AccountState is what the gate knows about the caller. A missing profile
// leaves Complete and Approved false.
type AccountState struct {
	Authenticated bool
	Staff         bool
	Complete      bool
	Approved      bool
}

func (s AccountState) HasFullAccess() bool {
	return s.Complete && s.Approved
}

type Decision struct {
	Outcome Outcome   `json:"outcome"`
	Target  string    `json:"target,omitempty"`
	Class   PathClass `json:"class,omitempty"`
	Reason  Reason    `json:"reason"`
}

func (d Decision) Allowed() bool {
	return d.Outcome == Allow
}

type Gate struct {
	policy Policy
}

func New(policy Policy) *Gate {
	if policy.PreviewPath == "" {
		policy.PreviewPath = DefaultPreviewPath
	}
	return &Gate{policy: policy}
}

func (g *Gate) Policy() Policy {
	return g.policy
}

// Decide routes a request for path by an account in state.
func (g *Gate) Decide(state AccountState, path string) Decision {
	switch {
	case !state.Authenticated:
		return Decision{Outcome: Allow, Reason: ReasonUnauthenticated}
	case state.Staff:
		return Decision{Outcome: Allow, Reason: ReasonStaff}
	case state.HasFullAccess():
		return Decision{Outcome: Allow, Reason: ReasonFullAccess}
	}

	class := g.policy.Classify(path)
	switch class {
	case ClassProtected:
		return g.redirect(class)
	case ClassUnclassified:
		if g.policy.FailClosed {
			return g.redirect(class)
		}
	}
	return Decision{Outcome: Allow, Class: class, Reason: ReasonPathClass}
}

func (g *Gate) redirect(class PathClass) Decision {
	return Decision{Outcome: Redirect, Target: g.policy.PreviewPath, Class: class, Reason: ReasonPathClass}
}

var defaultGate = New(DefaultPolicy())

// Decide uses the default policy.
func Decide(state AccountState, path string) Decision {
	return defaultGate.Decide(state, path)
}
