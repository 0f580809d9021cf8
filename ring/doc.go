// Package ring implements the driver side of the Ethernet DMA descriptor
// rings: a receive ring that reassembles frames spread over consecutive
// descriptors and a transmit ring that hands frame buffers to the DMA engine.
//
// Descriptors use the enhanced (32 byte) layout in ring mode. The OWN bit in
// the first status word is the only synchronization between software and the
// DMA engine: whoever clears or sets it must do so as the last store of an
// update, and nobody touches a descriptor or its buffer while the other side
// owns it. All descriptor words are accessed atomically.
//
// Neither ring is safe for concurrent use by multiple goroutines. The DMA
// engine is the only concurrent party.
package ring
