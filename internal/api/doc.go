// Package api implements the HTTP API of the serve command.
//
// New(store, target, engine) returns an http.Handler that serves:
//
//	GET /api/v1/health               files tracked and time of the last change
//	GET /api/v1/stats                aggregate report for the target (stats.Stats)
//	GET /api/v1/files?min_entropy=X  scored files at or above X, sorted by path
//	GET /api/v1/file?path=P          one tracked file; 404 if unknown
//	GET /api/v1/skipped              discovered files that could not be scored
//	GET /api/v1/outliers             files outside the 1.5 IQR fences
//	GET /api/v1/snapshot             everything above in one document
//	GET /api/v1/alerts               firing and recently resolved alerts
//	GET /metrics                     Prometheus text exposition
//
// All endpoints return 405 for non-GET methods. JSON types are defined in
// types.go. No external HTTP framework is used.
package api
