// Package common contains shared constants and sentinel errors used across
// accountkeeper components.
package common

// AuthorizationHeaderName is the HTTP header carrying bearer credentials.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the token inside the Authorization header.
const BearerPrefix = "Bearer "
