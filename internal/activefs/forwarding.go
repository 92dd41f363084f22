package activefs

// Forwarding embeds a FileSystem and forwards every call to it unchanged,
// mirroring ActiveJ's ForwardingActiveFs: a decorator embeds Forwarding and
// overrides only the methods it cares about (logging, metrics, caching),
// getting the rest for free via Go's embedding-based method promotion.
type Forwarding struct {
	FileSystem
}

// NewForwarding wraps fs for embedding into a decorator type.
func NewForwarding(fs FileSystem) Forwarding {
	return Forwarding{FileSystem: fs}
}
