package domain

import "time"

// Order is an immutable purchase record created at checkout.
type Order struct {
	ID        int64
	UserID    string
	Total     int
	State     string
	Country   string
	CreatedAt time.Time
	Items     []Item
}

// Item is one line of an order. Price is the movie price at purchase time.
type Item struct {
	ID        int64
	OrderID   int64
	MovieID   int64
	MovieName string
	Price     int
	Quantity  int
}

// Subtotal returns price times quantity.
func (i Item) Subtotal() int {
	return i.Price * i.Quantity
}

// UserProfile holds a user's default shipping location.
type UserProfile struct {
	UserID    string
	State     string
	Country   string
	CreatedAt time.Time
	UpdatedAt time.Time
}
