// Package media defines the types shared by every stage of the resolution
// pipeline: the resolved media descriptor, the delivery outcome variant, the
// collaborator interfaces, and the sentinel errors used across packages.
package media
