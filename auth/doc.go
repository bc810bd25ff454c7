// Package auth manages OAuth2 credentials for the upstream storage provider.
//
// It implements the authorization-code flow: building the consent URL,
// exchanging the returned code for tokens, persisting tokens across restarts,
// and transparently refreshing access tokens on use. The redirect state
// parameter is a signed, short-lived JWT so callbacks cannot be forged or
// replayed after expiry.
package auth
