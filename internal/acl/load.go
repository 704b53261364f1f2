package acl

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadPolicy reads a role → actions table from a JSON file such as
//
//	{"moderator": ["message.review", "ban.view"], "super_admin": ["..."]}
//
// An empty path yields DefaultPolicy. Unknown roles or actions are rejected
// so a typo cannot silently widen or narrow access.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	table := make(map[Role][]Action, len(raw))
	for name, actions := range raw {
		role := Role(name)
		if name != "anonymous" && !role.Valid() {
			return nil, fmt.Errorf("policy references unknown role %q", name)
		}
		if name == "anonymous" {
			role = RoleAnonymous
		}
		for _, a := range actions {
			if !knownAction(Action(a)) {
				return nil, fmt.Errorf("policy references unknown action %q", a)
			}
			table[role] = append(table[role], Action(a))
		}
	}
	return NewPolicy(table), nil
}

func knownAction(a Action) bool {
	switch a {
	case ActionMessageSubmit, ActionMessageReview, ActionMessageDeleteAny,
		ActionMessageViewQueue, ActionBanManage, ActionBanView,
		ActionUserRoleUpdate, ActionAuditView, ActionAuditInternal:
		return true
	}
	return false
}
