// Package middleware provides the gin middleware in front of the memory API.
//
//   - CORS: cross-origin access, allowing and exposing the X-Cap-Table and
//     trace headers
//   - RateLimit: per-IP token buckets; idle clients are swept after IdleTTL
//   - GlobalRateLimit: a single bucket shared by every client
//
// Rejected requests get a 429 with the same {success, code, error} body as
// every other API failure.
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
