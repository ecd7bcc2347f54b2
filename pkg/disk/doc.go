// Package disk describes the storage services needed to find and mount EFI
// system partitions: a disk inventory, the CoreStorage and APFS indirections
// between a volume and its physical disk, a mount service and the kernel
// mount table. Diskutil implements the services on macOS by decoding the
// property lists printed by diskutil(8).
package disk
