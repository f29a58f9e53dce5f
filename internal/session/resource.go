package session

// Kind identifies one cached resource, or one of the uncached request kinds
// that flow through the same dispatcher.
type Kind int

// Resource and request kinds.
const (
	KindConnection Kind = iota
	KindProfile
	KindAssetList
	KindTokenList
	KindAssetAccessToken
	KindAssetDetail
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindProfile:
		return "profile"
	case KindAssetList:
		return "asset_list"
	case KindTokenList:
		return "token_list"
	case KindAssetAccessToken:
		return "asset_access_token"
	case KindAssetDetail:
		return "asset_detail"
	default:
		return "unknown"
	}
}

// State is the observable state of a cached resource.
type State int

// Resource states. Loading is reported only while no value is held; a
// Loaded resource being refreshed stays Loaded and keeps serving its value.
const (
	NotLoaded State = iota
	Loading
	Loaded
	Failed
)

func (s State) String() string {
	switch s {
	case NotLoaded:
		return "not_loaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// cached is the per-kind cache: the last outcome, whether a fetch is in
// flight, and whether another refresh was requested while it was.
type cached[T any] struct {
	state   State // NotLoaded, Loaded or Failed
	value   T
	err     error
	loading bool
	queued  bool
}

// status folds the in-flight flag into the reported State.
func (c *cached[T]) status() State {
	if c.loading && c.state != Loaded {
		return Loading
	}

	return c.state
}

func (c *cached[T]) loaded() bool {
	return c.state == Loaded
}

func (c *cached[T]) set(v T) {
	c.state = Loaded
	c.value = v
	c.err = nil
}

func (c *cached[T]) fail(err error) {
	var zero T

	c.state = Failed
	c.value = zero
	c.err = err
}

// reset returns the cache to NotLoaded and reports whether anything changed.
func (c *cached[T]) reset() bool {
	changed := c.state != NotLoaded || c.loading || c.queued

	*c = cached[T]{}

	return changed
}
