// Package auth provides authentication middleware for the serve command.
//
// APIKeyMiddleware(mode, header, key) wraps an http.Handler and validates
// the API key from the named request header. Browsers cannot set headers on
// a WebSocket handshake, so the key is also accepted as the api_key query
// parameter.
//
// When mode != "apikey" or key == "", all requests pass through (useful for
// local development with auth disabled). When the key is incorrect or
// absent, the middleware answers 401 immediately.
package auth
