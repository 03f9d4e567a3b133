// Package bufpool supplies reusable read buffers for the Tun agent and
// PeerSession pumps, the same role the teacher's device.pool.messageBuffers
// sync.Pool of *[MaxMessageSize]byte plays for QueueOutboundElement.buffer
// in bt/controller/send.go.
package bufpool

import "sync"

// Size is the capacity of every pooled buffer: enough for one 1518-byte
// frame (see packet.MaxPayload).
const Size = 1518

var pool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, Size)
		return &buf
	},
}

// Get returns a buffer of length Size, reset to its full capacity. Ownership
// passes to the caller until Put is called.
func Get() *[]byte {
	return pool.Get().(*[]byte)
}

// Put returns a buffer to the pool. It must not be read or written after
// Put — this mirrors the teacher's device.PutMessageBuffer handoff.
func Put(buf *[]byte) {
	*buf = (*buf)[:Size]
	pool.Put(buf)
}
