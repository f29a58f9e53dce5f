package session

import "sync"

// Signal is a zero-argument, multi-subscriber notification. Subscribing and
// unsubscribing are safe from any goroutine; Fire runs on the session's
// owning goroutine and delivers to the subscribers present when it starts.
type Signal struct {
	name string

	mu     sync.Mutex
	nextID uint64
	subs   []subscriber
}

type subscriber struct {
	id uint64
	fn func()
}

// Subscription identifies one subscriber of a Signal.
type Subscription struct {
	sig *Signal
	id  uint64
}

// Unsubscribe removes the subscriber. It is idempotent and safe to call from
// inside the subscriber itself.
func (s Subscription) Unsubscribe() {
	if s.sig == nil {
		return
	}

	s.sig.mu.Lock()
	defer s.sig.mu.Unlock()

	for i, sub := range s.sig.subs {
		if sub.id == s.id {
			s.sig.subs = append(s.sig.subs[:i:i], s.sig.subs[i+1:]...)
			return
		}
	}
}

// Name returns the signal's event name.
func (s *Signal) Name() string {
	return s.name
}

// Subscribe registers fn and returns a handle to remove it.
func (s *Signal) Subscribe(fn func()) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.subs = append(s.subs, subscriber{id: s.nextID, fn: fn})

	return Subscription{sig: s, id: s.nextID}
}

// Len returns the current number of subscribers.
func (s *Signal) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.subs)
}

// Fire calls every current subscriber synchronously, in subscription order.
func (s *Signal) Fire() {
	s.mu.Lock()
	snapshot := make([]subscriber, len(s.subs))
	copy(snapshot, s.subs)
	s.mu.Unlock()

	for _, sub := range snapshot {
		sub.fn()
	}
}

// Event names, as reported by Signal.Name.
const (
	EventConnectionUpdated       = "ConnectionUpdated"
	EventProfileUpdated          = "ProfileUpdated"
	EventAssetsUpdated           = "AssetsUpdated"
	EventTokensUpdated           = "TokensUpdated"
	EventAssetAccessTokenUpdated = "AssetAccessTokenUpdated"
)

// Hub owns one Signal per observable kind.
type Hub struct {
	ConnectionUpdated       Signal
	ProfileUpdated          Signal
	AssetsUpdated           Signal
	TokensUpdated           Signal
	AssetAccessTokenUpdated Signal
}

func newHub() *Hub {
	return &Hub{
		ConnectionUpdated:       Signal{name: EventConnectionUpdated},
		ProfileUpdated:          Signal{name: EventProfileUpdated},
		AssetsUpdated:           Signal{name: EventAssetsUpdated},
		TokensUpdated:           Signal{name: EventTokensUpdated},
		AssetAccessTokenUpdated: Signal{name: EventAssetAccessTokenUpdated},
	}
}

// All returns the signals in the order Disconnect fires them.
func (h *Hub) All() []*Signal {
	return []*Signal{
		&h.ConnectionUpdated,
		&h.ProfileUpdated,
		&h.AssetsUpdated,
		&h.TokensUpdated,
		&h.AssetAccessTokenUpdated,
	}
}

// For returns the signal fired when kind changes, or nil for kinds without one.
func (h *Hub) For(kind Kind) *Signal {
	switch kind {
	case KindConnection:
		return &h.ConnectionUpdated
	case KindProfile:
		return &h.ProfileUpdated
	case KindAssetList:
		return &h.AssetsUpdated
	case KindTokenList:
		return &h.TokensUpdated
	case KindAssetAccessToken:
		return &h.AssetAccessTokenUpdated
	default:
		return nil
	}
}
