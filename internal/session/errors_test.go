package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		want error
	}{
		{"connection", KindConnection, ErrAuthFailure},
		{"asset token", KindAssetAccessToken, ErrTokenCreationFailure},
		{"profile", KindProfile, ErrNetworkFailure},
		{"asset list", KindAssetList, ErrNetworkFailure},
		{"token list", KindTokenList, ErrNetworkFailure},
		{"asset detail", KindAssetDetail, ErrNetworkFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.kind, errBoom)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, errBoom)
		})
	}
}

func TestClassify_KeepsExistingSentinel(t *testing.T) {
	assert.Same(t, ErrNotConnected, classify(KindProfile, ErrNotConnected))
	assert.NoError(t, classify(KindProfile, nil))
}

func TestKindAndStateStrings(t *testing.T) {
	assert.Equal(t, "token_list", KindTokenList.String())
	assert.Equal(t, "unknown", Kind(99).String())
	assert.Equal(t, "loading", Loading.String())
	assert.Equal(t, "unknown", State(99).String())
}
