package gate

import "strings"

// Permission is "resource:action", e.g. "invoice:delete". Either half may be "*".
type Permission string

// Wildcard matches any resource or action.
const Wildcard = "*"

// PermissionAll grants everything.
const PermissionAll Permission = "*:*"

// NewPermission joins a resource and an action.
func NewPermission(resource string, action Action) Permission {
	return Permission(resource + ":" + string(action))
}

// Parse splits p. Malformed permissions yield empty strings.
func (p Permission) Parse() (resource string, action Action) {
	res, act, ok := strings.Cut(string(p), ":")
	if !ok {
		return "", ""
	}
	return res, Action(act)
}

// Matches reports whether p grants requested.
func (p Permission) Matches(requested Permission) bool {
	if p == PermissionAll || p == requested {
		return true
	}
	res, act := p.Parse()
	reqRes, reqAct := requested.Parse()
	if res == "" || reqRes == "" {
		return false
	}
	return (res == Wildcard || res == reqRes) && (string(act) == Wildcard || act == reqAct)
}
