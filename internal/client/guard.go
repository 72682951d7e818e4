package client

import (
	"parss/internal/authz"
	"parss/internal/domain"
)

// Views the guard redirects to.
const (
	ViewLogin        = "login"
	ViewUnauthorized = "unauthorized"
)

// Navigator moves the user interface to a named view.
type Navigator interface {
	Navigate(view string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(view string)

func (f NavigatorFunc) Navigate(view string) { f(view) }

type discardNavigator struct{}

func (discardNavigator) Navigate(string) {}

// View is a guarded screen and what it requires.
type View struct {
	Name        string
	Requirement authz.Requirement
	// Institution, when set, restricts the view to principals that may act
	// for that institution.
	Institution string
}

// Outcome is the guard's verdict for a view.
type Outcome int

const (
	Render Outcome = iota
	RedirectLogin
	RedirectUnauthorized
)

func (o Outcome) String() string {
	switch o {
	case Render:
		return "render"
	case RedirectLogin:
		return "redirect_login"
	case RedirectUnauthorized:
		return "redirect_unauthorized"
	default:
		return "unknown"
	}
}

// Guard gates navigation using the same evaluator as the server. It is a
// convenience for the interface; the server remains the enforcement point.
type Guard struct {
	session *Session
	roles   *authz.Table
	nav     Navigator
}

// NewGuard creates a guard. A nil roles table selects authz.Default.
func NewGuard(session *Session, roles *authz.Table, nav Navigator) *Guard {
	if roles == nil {
		roles = authz.Default()
	}
	if nav == nil {
		nav = discardNavigator{}
	}
	return &Guard{session: session, roles: roles, nav: nav}
}

// Check decides whether v may render for the current session.
func (g *Guard) Check(v View) Outcome {
	p, ok := g.session.Principal()
	if !ok {
		return RedirectLogin
	}
	if !g.roles.Evaluate(p, v.Requirement).Allowed {
		return RedirectUnauthorized
	}
	if v.Institution != "" && !g.roles.CanActFor(p, v.Institution) {
		return RedirectUnauthorized
	}
	return Render
}

// Enter checks v and navigates away when it may not render. It reports
// whether the view may render.
func (g *Guard) Enter(v View) bool {
	switch g.Check(v) {
	case RedirectLogin:
		g.nav.Navigate(ViewLogin)
		return false
	case RedirectUnauthorized:
		g.nav.Navigate(ViewUnauthorized)
		return false
	default:
		return true
	}
}

// Can reports whether the current principal holds perm. Use it to hide
// controls the server would reject.
func (g *Guard) Can(perm domain.Permission) bool {
	p, _ := g.session.Principal()
	return g.roles.HasPermission(p, perm)
}

// Is reports whether the current principal has exactly role.
func (g *Guard) Is(role domain.Role) bool {
	p, _ := g.session.Principal()
	return g.roles.HasRole(p, role)
}
