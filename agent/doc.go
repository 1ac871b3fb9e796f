// Package agent maps a classified intent onto an agent profile: the system
// instruction and the tool registry the orchestration loop runs with.
//
// Profiles are declared in YAML (an embedded default ships with the package)
// and bound to tool registries by name when the Selector is built. Selection
// is a pure function of the intent; nothing about earlier turns is consulted.
package agent
