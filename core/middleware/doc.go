// Package middleware contains HTTP middleware for the coverage API.
//
// # Components
//
//   - auth: rejects requests without the configured API key.
//   - rayid: assigns every request a ray id, stored in the "ray_id" local and
//     echoed in the X-Ray-ID response header for tracing.
package middleware
