package gate

import (
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPreviewPath is where gated accounts are sent.
const DefaultPreviewPath = "/preview/"

// Rules matches a path either exactly or by prefix. Prefixes end in a slash;
// "/messages" matches "/messages/" but "/messagesx" does not.
type Rules struct {
	Exact    []string `yaml:"exact"`
	Prefixes []string `yaml:"prefixes"`
}

func (r Rules) Match(p string) bool {
	for _, e := range r.Exact {
		if p == e {
			return true
		}
	}
	slashed := p
	if !strings.HasSuffix(slashed, "/") {
		slashed += "/"
	}
	for _, prefix := range r.Prefixes {
		if strings.HasPrefix(slashed, prefix) {
			return true
		}
	}
	return false
}

// Policy is the routing table of the gate. Classes are tested in the order
// public, shell, profile completion, protected; the first match wins.
type Policy struct {
	Public            Rules  `yaml:"public"`
	Shell             Rules  `yaml:"shell"`
	ProfileCompletion Rules  `yaml:"profile_completion"`
	Protected         Rules  `yaml:"protected"`
	PreviewPath       string `yaml:"preview_path"`
	// FailClosed redirects unclassified paths instead of allowing them.
	FailClosed bool `yaml:"fail_closed"`
}

// DefaultPolicy returns the application's route classes plus the API groups
// served by this service.
func DefaultPolicy() Policy {
	return Policy{
		Public: Rules{
			Exact: []string{"/", "/index/"},
			Prefixes: []string{
				"/static/", "/media/",
				"/login/", "/logout/", "/join/", "/auth/", "/accounts/",
				"/blog/", "/admin/", "/preview/",
				"/api/v1/admin/",
			},
		},
		Shell: Rules{
			Prefixes: []string{"/dashboard/", "/api/v1/gate/", "/api/v1/badges/"},
		},
		ProfileCompletion: Rules{
			Prefixes: []string{"/profile/create/", "/profile/preview/", "/api/v1/profile/complete/"},
		},
		Protected: Rules{
			Prefixes: []string{
				"/messages/", "/matches/", "/hotdates/", "/settings/", "/profile/",
				"/api/v1/threads/", "/api/v1/messages/", "/api/v1/access-requests/", "/api/v1/blocks/",
			},
		},
		PreviewPath: DefaultPreviewPath,
	}
}

// LoadPolicy reads a YAML policy file. Sections missing from the file keep
// their default rules.
func LoadPolicy(file string) (Policy, error) {
	policy := DefaultPolicy()
	raw, err := os.ReadFile(file)
	if err != nil {
		return policy, fmt.Errorf("failed to read gate policy %s: %w", file, err)
	}
	if err := yaml.Unmarshal(raw, &policy); err != nil {
		return policy, fmt.Errorf("failed to parse gate policy %s: %w", file, err)
	}
	if policy.PreviewPath == "" {
		policy.PreviewPath = DefaultPreviewPath
	}
	return policy, nil
}

// Classify returns the class of p. Dot segments are resolved first so that
// "/profile/create/../settings/" is judged as "/profile/settings/".
func (p Policy) Classify(requested string) PathClass {
	clean := normalize(requested)
	switch {
	case p.Public.Match(clean):
		return ClassPublic
	case p.Shell.Match(clean):
		return ClassShell
	case p.ProfileCompletion.Match(clean):
		return ClassProfileCompletion
	case p.Protected.Match(clean):
		return ClassProtected
	default:
		return ClassUnclassified
	}
}

func normalize(requested string) string {
	if requested == "" {
		return "/"
	}
	if !strings.HasPrefix(requested, "/") {
		requested = "/" + requested
	}
	clean := path.Clean(requested)
	if strings.HasSuffix(requested, "/") && clean != "/" {
		clean += "/"
	}
	return clean
}
