// Package cas implements the client side of a CAS proxy authentication flow:
// signed login challenges, out-of-band ticket verification, binding of
// verified identities onto local user records, a durable session-to-ticket
// ledger, and the login/logout protocol controllers that orchestrate them.
//
// The CAS provider itself is an external collaborator reached over HTTP:
//
//	login:  GET {provider}/login/{app}?d={digest}&u={requestURL}
//	verify: GET {provider}/login/{app}/verify?d={digest}&t={ticket}
//	logout: GET {provider}/logout?u={requestURL}&t={ticket}&app={app}
//
// Verification and binding failures are expected runtime outcomes and are
// reported as absent results; configuration errors are fatal and abort the
// request.
package cas
