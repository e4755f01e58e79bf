// Package branchmeta persists per-branch metadata for gklean.
//
// It exposes Store for loading, mutating, and atomically persisting the
// branch-keyed record mapping kept in .gklean/branch_meta.json, the Status
// enumeration with boundary validation, ResolveStorageRoot for anchoring the
// metadata file at the repository root, and RenderContext for producing the
// human-readable branch summary.
package branchmeta
