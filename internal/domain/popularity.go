package domain

// MoviePurchases is the summed purchase quantity for one movie within a scope.
type MoviePurchases struct {
	Movie     Movie
	Purchases int64
}

// RegionMovieCount is one (state, movie name) bucket of purchased quantity.
type RegionMovieCount struct {
	State     string
	MovieName string
	Count     int64
}

// MovieCount is a movie name with its purchase count inside one region.
type MovieCount struct {
	Movie string `json:"movie"`
	Count int64  `json:"count"`
}
