package portalapi

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/civicportal/resident-portal/internal/core/domain"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// FlexID accepts ids sent either as JSON strings or numbers.
type FlexID string

func (f *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

// roleField accepts "ADMIN" as well as {"roleName": "ADMIN"}. Any other shape
// decodes to the empty role.
type roleField domain.Role

func (r *roleField) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		*r = roleField(domain.NormalizeRole(name))
		return nil
	}
	var nested struct {
		RoleName string `json:"roleName"`
	}
	if err := json.Unmarshal(b, &nested); err == nil {
		*r = roleField(domain.NormalizeRole(nested.RoleName))
		return nil
	}
	*r = ""
	return nil
}

type profileResponse struct {
	ID        FlexID    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	FullName  string    `json:"fullName"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Role      roleField `json:"role"`
}

func (p profileResponse) toDomain() *domain.Profile {
	name := p.FullName
	if name == "" {
		name = p.Name
	}
	if name == "" {
		name = strings.TrimSpace(p.FirstName + " " + p.LastName)
	}
	return &domain.Profile{
		ID:          string(p.ID),
		Email:       p.Email,
		DisplayName: name,
		Role:        domain.Role(p.Role),
	}
}

// Notification is a message addressed to the current user.
type Notification struct {
	ID        FlexID    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// Announcement is a municipality-wide notice.
type Announcement struct {
	ID          FlexID    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	PublishedAt time.Time `json:"publishedAt"`
}
