// Package engine copies the EFI system partition of a source volume's disk
// onto the EFI system partition of a destination volume's disk and proves
// the copy by comparing content digests.
//
// A run walks a fixed sequence of states:
//
//	START → RESOLVE_SOURCE → RESOLVE_DEST → SANITY_CHECK → MOUNT → SYNC →
//	HASH_BOTH → COMPARE → UNMOUNT → END
//
// Any fatal condition jumps straight to UNMOUNT, which always releases the
// partitions mounted so far, destination first.
package engine
