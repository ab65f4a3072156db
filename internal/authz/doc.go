// Package authz decides whether an actor may perform an action.
//
// The decision procedure:
//
//  1. effective = direct privileges ∪ privileges of every held role
//  2. effective = effective − revoked privileges
//  3. ALL in effective grants every action; otherwise the action must be
//     present by name
//  4. anything else is denied
//
// An optional Evaluator is consulted after a grant matched. It can veto
// but never grant, so revocation and default deny always hold.
//
// Grants are read on every call. Nothing is cached between requests.
package authz
