// Package disk wraps the platform file-system calls the journal depends
// on: usable-space probing before segment allocation, durable flush, and
// segment-file preallocation.
package disk
