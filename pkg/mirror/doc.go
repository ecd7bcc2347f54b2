// Package mirror makes a destination directory an exact copy of a source
// directory and computes content digests of directory trees to prove it.
//
// Two backends are provided: Native, which works on an afero.Fs and is used
// by default, and Rsync, which drives rsync(1). Both honour the same
// exclude patterns and report the operations they performed, or would have
// performed in dry-run mode.
package mirror
