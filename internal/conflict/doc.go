// Package conflict resolves true three-way conflicts on session keys.
//
// A Table is an ordered list of Rules. Each Rule pairs a key pattern with a
// Policy. Rules are evaluated in declaration order and the first match
// decides the outcome:
//
//   - Override: keep the value written by this unit of work ("mine")
//   - Ignore:   keep the value persisted by the other writer ("theirs")
//   - Fail:     abort with a ConflictError
//
// A conflicting key that matches no rule also fails. There is no implicit
// default side: every key that may legitimately conflict has to be covered
// by an operator-declared rule.
//
// # Patterns
//
//   - "/expr/" or "re:expr": Go regular expression, unanchored
//   - anything else: glob pattern (github.com/gobwas/glob), so a bare key
//     name matches exactly that key and "cart.*" matches "cart.items"
//
// Keys are NFC-normalized before matching.
package conflict
