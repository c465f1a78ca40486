package auth

// Allowed is the route-guard predicate: it reports whether role may enter a
// route restricted to allowed. An empty allowed list admits any authenticated
// role. The unauthenticated role is never admitted.
func Allowed(role Role, allowed ...Role) bool {
	if _, ok := ParseRole(string(role)); !ok {
		return false
	}
	if len(allowed) == 0 {
		return true
	}
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
