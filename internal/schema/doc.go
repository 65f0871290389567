// Package schema holds the positional record shapes of the upstream feeds.
//
// A schema is the ordered list of field names taken from the first line of a
// CSV header file (for example L1FeedMessages.csv or MarketDepthMessages.csv).
// Position i of the list names token i of every data line of that feed.
//
// The package also owns the field type hint table that tells the decoder
// which canonical field names carry integers or floats.
package schema
