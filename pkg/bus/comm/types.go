// Package comm implements the bus over packet transports.
package comm

// PacketReader reads packets in bytes.
type PacketReader interface {
	ReadPacket() ([]byte, error)
}

// PacketWriter writes packets in bytes.
type PacketWriter interface {
	WritePacket([]byte) error
}

// PacketReadWriter reads/writes packets in bytes.
type PacketReadWriter interface {
	PacketReader
	PacketWriter
}

// Named is implemented by transports which can describe the peer.
type Named interface {
	Name() string
}

func peerName(rw PacketReadWriter) string {
	if n, ok := rw.(Named); ok {
		return n.Name()
	}
	return "peer"
}
