// Package popularity ranks movies by purchased quantity, either as a trending
// list for one region or as a per-state breakdown for the popularity map.
package popularity

import (
	"strings"

	"github.com/Clark-Hu/moviestore/internal/domain"
	"github.com/Clark-Hu/moviestore/internal/repository"
)

// ScopeKind identifies which source the region scope was resolved from.
type ScopeKind string

const (
	ScopeGlobal   ScopeKind = "global"
	ScopeExplicit ScopeKind = "explicit"
	ScopeState    ScopeKind = "state"
	ScopeCountry  ScopeKind = "country"
)

// Scope is the region an aggregation runs over.
type Scope struct {
	Kind  ScopeKind
	Value string
}

// ResolveScope picks the first non-blank of: the explicit filter, the
// profile's state, the profile's country. With none set the scope is global.
func ResolveScope(explicit string, profile *domain.UserProfile) Scope {
	if v := strings.TrimSpace(explicit); v != "" {
		return Scope{Kind: ScopeExplicit, Value: v}
	}
	if profile != nil {
		if v := strings.TrimSpace(profile.State); v != "" {
			return Scope{Kind: ScopeState, Value: v}
		}
		if v := strings.TrimSpace(profile.Country); v != "" {
			return Scope{Kind: ScopeCountry, Value: v}
		}
	}
	return Scope{Kind: ScopeGlobal}
}

// Filter converts the scope into an order filter. Explicit regions match the
// order's state.
func (s Scope) Filter() repository.PurchaseFilter {
	switch s.Kind {
	case ScopeExplicit, ScopeState:
		return repository.PurchaseFilter{State: s.Value}
	case ScopeCountry:
		return repository.PurchaseFilter{Country: s.Value}
	default:
		return repository.PurchaseFilter{}
	}
}

func (s Scope) String() string {
	if s.Kind == ScopeGlobal || s.Kind == "" {
		return string(ScopeGlobal)
	}
	return string(s.Kind) + ":" + s.Value
}
