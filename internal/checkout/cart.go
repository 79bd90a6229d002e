// Package checkout owns the shopping cart value and turns a cart into an
// order.
package checkout

import (
	"sort"
)

// MaxLineQuantity bounds a single cart line.
const MaxLineQuantity = 100

// Line is one movie in the cart.
type Line struct {
	MovieID  int64 `json:"movieId"`
	Quantity int   `json:"quantity"`
}

// Cart is an immutable-by-convention value: mutators return a new Cart and
// leave the receiver untouched. Lines are kept sorted by movie id.
type Cart struct {
	Lines []Line `json:"lines"`
}

// WithQuantity returns a copy of c where movieID has exactly quantity units.
// A quantity of zero removes the line.
func (c Cart) WithQuantity(movieID int64, quantity int) Cart {
	next := make([]Line, 0, len(c.Lines)+1)
	found := false
	for _, l := range c.Lines {
		if l.MovieID == movieID {
			found = true
			if quantity > 0 {
				next = append(next, Line{MovieID: movieID, Quantity: quantity})
			}
			continue
		}
		next = append(next, l)
	}
	if !found && quantity > 0 {
		next = append(next, Line{MovieID: movieID, Quantity: quantity})
	}
	sort.Slice(next, func(i, j int) bool { return next[i].MovieID < next[j].MovieID })
	return Cart{Lines: next}
}

// Without returns a copy of c with movieID removed.
func (c Cart) Without(movieID int64) Cart {
	return c.WithQuantity(movieID, 0)
}

// Quantity returns the units of movieID in the cart.
func (c Cart) Quantity(movieID int64) int {
	for _, l := range c.Lines {
		if l.MovieID == movieID {
			return l.Quantity
		}
	}
	return 0
}

func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// MovieIDs lists the distinct movies in the cart in ascending order.
func (c Cart) MovieIDs() []int64 {
	ids := make([]int64, len(c.Lines))
	for i, l := range c.Lines {
		ids[i] = l.MovieID
	}
	return ids
}

// normalized drops invalid lines and merges duplicates. Used on load so a
// corrupted stored value never reaches checkout.
func (c Cart) normalized() Cart {
	out := Cart{}
	for _, l := range c.Lines {
		if l.MovieID <= 0 || l.Quantity <= 0 {
			continue
		}
		q := out.Quantity(l.MovieID) + l.Quantity
		if q > MaxLineQuantity {
			q = MaxLineQuantity
		}
		out = out.WithQuantity(l.MovieID, q)
	}
	if out.Lines == nil {
		out.Lines = []Line{}
	}
	return out
}
