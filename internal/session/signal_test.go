package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignal_FiresInSubscriptionOrder(t *testing.T) {
	var sig Signal

	var order []int

	sig.Subscribe(func() { order = append(order, 1) })
	sig.Subscribe(func() { order = append(order, 2) })

	sig.Fire()

	assert.Equal(t, []int{1, 2}, order)
}

func TestSignal_Unsubscribe(t *testing.T) {
	var sig Signal

	calls := 0
	sub := sig.Subscribe(func() { calls++ })

	sig.Fire()
	sub.Unsubscribe()
	sub.Unsubscribe()
	sig.Fire()

	assert.Equal(t, 1, calls)
	assert.Zero(t, sig.Len())
}

func TestSignal_UnsubscribeFromInsideCallback(t *testing.T) {
	var sig Signal

	var (
		sub   Subscription
		first int
		other int
	)

	sub = sig.Subscribe(func() {
		first++
		sub.Unsubscribe()
	})
	sig.Subscribe(func() { other++ })

	sig.Fire()
	sig.Fire()

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, other)
}

func TestSignal_SubscribeDuringFireWaitsForNextFire(t *testing.T) {
	var sig Signal

	late := 0
	added := false

	sig.Subscribe(func() {
		if !added {
			added = true
			sig.Subscribe(func() { late++ })
		}
	})

	sig.Fire()
	assert.Zero(t, late)

	sig.Fire()
	assert.Equal(t, 1, late)
}

func TestZeroSubscription_UnsubscribeIsNoop(t *testing.T) {
	assert.NotPanics(t, func() { Subscription{}.Unsubscribe() })
}

func TestHub_For(t *testing.T) {
	h := newHub()

	assert.Equal(t, EventConnectionUpdated, h.For(KindConnection).Name())
	assert.Equal(t, EventProfileUpdated, h.For(KindProfile).Name())
	assert.Equal(t, EventAssetsUpdated, h.For(KindAssetList).Name())
	assert.Equal(t, EventTokensUpdated, h.For(KindTokenList).Name())
	assert.Equal(t, EventAssetAccessTokenUpdated, h.For(KindAssetAccessToken).Name())
	assert.Nil(t, h.For(KindAssetDetail))
	assert.Len(t, h.All(), 5)
}
