// Package rbac holds the static role tables consulted by the route and
// capability gates.
package rbac

import (
	"net/url"
	"path"
	"sort"
	"strings"

	"hirexp-auth/internal/model"
)

type Permission string

const (
	ProfileRead    Permission = "profile:read"
	ProfileUpdate  Permission = "profile:update"
	JobsBrowse     Permission = "jobs:browse"
	JobsApply      Permission = "jobs:apply"
	JobsPost       Permission = "jobs:post"
	JobsManage     Permission = "jobs:manage"
	CandidatesView Permission = "candidates:view"
	CoursesEnroll  Permission = "courses:enroll"
	CoursesCreate  Permission = "courses:create"
	CoursesManage  Permission = "courses:manage"
	UsersRead      Permission = "users:read"
	UsersManage    Permission = "users:manage"
	AuditRead      Permission = "audit:read"
	AuditExport    Permission = "audit:export"
)

const LoginRoute = "/login"

var publicRoutes = []string{
	"/",
	"/about",
	"/pricing",
	"/contact",
	"/login",
	"/register",
	"/verify-email",
	"/forgot-password",
	"/reset-password",
	"/api/auth",
}

var dashboards = map[model.Role]string{
	model.RoleCandidate: "/dashboard/candidate",
	model.RoleEmployer:  "/dashboard/employer",
	model.RoleTrainer:   "/dashboard/trainer",
	model.RoleAdmin:     "/admin",
}

var roleRoutes = map[model.Role][]string{
	model.RoleCandidate: {"/dashboard/candidate", "/profile", "/settings"},
	model.RoleEmployer:  {"/dashboard/employer", "/profile", "/settings"},
	model.RoleTrainer:   {"/dashboard/trainer", "/profile", "/settings"},
	model.RoleAdmin: {
		"/admin",
		"/dashboard/candidate",
		"/dashboard/employer",
		"/dashboard/trainer",
		"/profile",
		"/settings",
	},
}

var rolePermissions = map[model.Role][]Permission{
	model.RoleCandidate: {ProfileRead, ProfileUpdate, JobsBrowse, JobsApply, CoursesEnroll},
	model.RoleEmployer:  {ProfileRead, ProfileUpdate, JobsBrowse, JobsPost, JobsManage, CandidatesView},
	model.RoleTrainer:   {ProfileRead, ProfileUpdate, CoursesCreate, CoursesManage, CandidatesView},
}

func init() {
	seen := map[Permission]bool{}
	var all []Permission
	for _, perms := range rolePermissions {
		for _, p := range perms {
			if !seen[p] {
				seen[p] = true
				all = append(all, p)
			}
		}
	}
	all = append(all, UsersRead, UsersManage, AuditRead, AuditExport)
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	rolePermissions[model.RoleAdmin] = all
}

func IsPublicRoute(path string) bool {
	return matchAny(publicRoutes, path)
}

// CanAccessRoute reports whether role may open path. Public routes are open to every role.
func CanAccessRoute(role model.Role, path string) bool {
	if IsPublicRoute(path) {
		return true
	}
	return matchAny(roleRoutes[role], path)
}

func HasPermission(role model.Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

func PermissionsFor(role model.Role) []Permission {
	perms := rolePermissions[role]
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

func DashboardFor(role model.Role) string {
	if d, ok := dashboards[role]; ok {
		return d
	}
	return "/"
}

func matchAny(prefixes []string, path string) bool {
	path = normalize(path)
	for _, prefix := range prefixes {
		if matchPrefix(prefix, path) {
			return true
		}
	}
	return false
}

// matchPrefix matches whole path segments: /admin covers /admin/users but not /administrator.
// The root route only matches itself.
func matchPrefix(prefix, path string) bool {
	if prefix == "/" {
		return path == "/"
	}
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}

// normalize drops the query and fragment, decodes escapes and resolves dot
// segments, so "/login/../admin" is judged as "/admin".
func normalize(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}
	return path.Clean("/" + p)
}
