// Package types defines the shared error taxonomy for the poolstall service.
//
// Errors are structured values carrying a stable code, an HTTP status hint,
// and a retryability flag. An upstream that is unreachable is terminal for
// the single request that hit it and is never retried automatically.
package types
