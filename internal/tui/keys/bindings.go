// Package keys maps key events to named actions, scoped per page.
package keys

import "github.com/gdamore/tcell/v2"

// Action is a single keybinding.
type Action struct {
	Key         tcell.Key
	Rune        rune
	Description string
	Handler     func()
	Visible     bool
}

// Matches reports whether the event triggers this action.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

// Registry holds keybindings by scope. The empty scope is global.
type Registry struct {
	scopes map[string][]*Action
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{scopes: make(map[string][]*Action)}
}

// Bind registers an action under a scope. Pass "" for global bindings.
func (r *Registry) Bind(scope string, action *Action) {
	r.scopes[scope] = append(r.scopes[scope], action)
}

// Hints returns visible binding descriptions for a page, page-scoped first.
func (r *Registry) Hints(scope string) []string {
	var hints []string
	for _, a := range r.scopes[scope] {
		if a.Visible {
			hints = append(hints, a.Description)
		}
	}
	for _, a := range r.scopes[""] {
		if a.Visible {
			hints = append(hints, a.Description)
		}
	}
	return hints
}

// HandleEvent dispatches a key event, page bindings before globals.
// Returns true when a handler ran.
func (r *Registry) HandleEvent(scope string, ev *tcell.EventKey) bool {
	for _, a := range r.scopes[scope] {
		if a.Matches(ev) {
			a.Handler()
			return true
		}
	}
	for _, a := range r.scopes[""] {
		if a.Matches(ev) {
			a.Handler()
			return true
		}
	}
	return false
}
