// Package model defines the entity types of the lattice metadata core.
//
// This package contains type definitions, closed enumerations and the error
// taxonomy. All other internal packages import model; model imports nothing
// internal. This keeps the model the foundational layer with no circular
// dependencies.
//
// Key design constraints:
//   - Every entity embeds Base and has exactly one owner
//   - Foreign keys are declared explicitly through Refs, never inferred
//   - Reverse references are not stored on the entity; the store answers them
//   - Kind registration is an explicit startup step (NewRegistry), not init()
//   - All JSON tags use snake_case
package model
