// Package http serves the memory manager over REST with gin.
//
// Bundles are exchanged as wire.Bundle JSON bodies; the capability table is
// named by the X-Cap-Table header and defaults to the caller's top-level
// table. Every failure returns a wire.Error body whose code is stable:
//
//	507  alloc_failed, no_slots
//	400  obj_type_invalid, obj_count_invalid, obj_desc_invalid, bad_request,
//	     unsupported_encoding, corrupt_stream
//	404  not_found
//	413  too_large
//	500  anything else
//
// Uploads stream straight into frames; a Content-Encoding of zstd or gzip
// is decoded on the way in. GET /v1/uploads/:id?raw streams the bytes back.
package http
