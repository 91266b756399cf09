package api

import (
	"github.com/civicportal/resident-portal/internal/api/middleware"
	"github.com/civicportal/resident-portal/internal/core/domain"
)

// view is a protected page and the access policy declared for it. Views
// with a backend path proxy that document; the rest have dedicated handlers.
type view struct {
	path    string
	policy  middleware.Policy
	backend string
}

var (
	residentsOnly = middleware.RequireRoles(domain.RoleResident)
	adminsOnly    = middleware.RequireRoles(domain.RoleAdmin)
)

// proxiedViews are the portal screens that render one backend document.
var proxiedViews = []view{
	{path: "/complaints", policy: residentsOnly, backend: "/api/complaints/my"},
	{path: "/kindergartens", policy: residentsOnly, backend: "/api/kindergartens"},
	{path: "/bills", policy: residentsOnly, backend: "/api/bills/my"},
	{path: "/properties", policy: residentsOnly, backend: "/api/properties/my"},
	{path: "/events", policy: middleware.AnyAuthenticated(), backend: "/api/events"},

	{path: "/admin", policy: adminsOnly, backend: "/api/admin/dashboard"},
	{path: "/admin/users", policy: adminsOnly, backend: "/api/admin/users"},
	{path: "/admin/payments", policy: adminsOnly, backend: "/api/admin/payments"},
	{path: "/admin/complaints", policy: adminsOnly, backend: "/api/admin/complaints"},
	{path: "/admin/properties", policy: adminsOnly, backend: "/api/admin/properties"},
}
