// Package bpfsys contains the low level bpf(2) syscall wrappers the loader
// drives: map creation, program loading, pinning, pinned-object retrieval and
// object info queries. It holds the raw syscall and the attribute layouts; the
// loader package fills the pointer fields of those attributes itself.
package bpfsys
