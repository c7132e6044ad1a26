package identity

import (
	"net/http"
)

type Plan string

const (
	PlanFree    Plan = "free"
	PlanMastery Plan = "mastery"
)

// UserIdentity is built per request and never stored.
type UserIdentity struct {
	LoggedIn bool   `json:"loggedIn"`
	Plan     Plan   `json:"plan"`
	Email    string `json:"email"`
}

// HasPlan reports whether u is on plan p. A nil identity has no plan.
func (u *UserIdentity) HasPlan(p Plan) bool {
	return u != nil && u.Plan == p
}

// Resolver maps an inbound request to the caller's identity.
// A nil identity with a nil error means "no user".
type Resolver interface {
	Resolve(r *http.Request) (*UserIdentity, error)
}

// MockResolver ignores the request and always returns the same logged-in
// user. It stands in until cookie/token decoding and a user store exist.
type MockResolver struct {
	Plan  Plan
	Email string
}

func NewMockResolver(plan, email string) *MockResolver {
	p := Plan(plan)
	if p == "" {
		p = PlanMastery
	}
	if email == "" {
		email = "student@example.com"
	}
	return &MockResolver{Plan: p, Email: email}
}

func (m *MockResolver) Resolve(*http.Request) (*UserIdentity, error) {
	return m.Current(), nil
}

// Current returns a fresh copy of the mocked user for callers that have no
// HTTP request, such as the Telegram front-end.
func (m *MockResolver) Current() *UserIdentity {
	return &UserIdentity{
		LoggedIn: true,
		Plan:     m.Plan,
		Email:    m.Email,
	}
}
