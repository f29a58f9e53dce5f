package session

import "github.com/tonimelisma/ion-go/internal/ion"

// GetProfile returns the cached profile. When it is not Loaded it returns
// the zero Profile and starts a refresh.
func (s *Session) GetProfile() ion.Profile {
	if !s.profile.loaded() {
		s.RefreshProfile()
	}

	return s.profile.value
}

// GetAssets returns the cached asset list, or an empty list while a refresh
// is started.
func (s *Session) GetAssets() ion.Assets {
	if !s.assets.loaded() {
		s.RefreshAssets()
	}

	return s.assets.value
}

// GetTokens returns the cached token list, or nil while a refresh is
// started.
func (s *Session) GetTokens() []ion.Token {
	if !s.tokens.loaded() {
		s.RefreshTokens()
	}

	return s.tokens.value
}

// GetAssetAccessToken returns the derived asset access token, or the zero
// Token while it is being derived.
func (s *Session) GetAssetAccessToken() ion.Token {
	if !s.assetToken.loaded() {
		s.RefreshAssetAccessToken()
	}

	return s.assetToken.value
}

func (s *Session) IsProfileLoaded() bool          { return s.profile.loaded() }
func (s *Session) IsAssetListLoaded() bool        { return s.assets.loaded() }
func (s *Session) IsTokenListLoaded() bool        { return s.tokens.loaded() }
func (s *Session) IsAssetAccessTokenLoaded() bool { return s.assetToken.loaded() }

func (s *Session) IsLoadingProfile() bool          { return s.profile.loading }
func (s *Session) IsLoadingAssetList() bool        { return s.assets.loading }
func (s *Session) IsLoadingTokenList() bool        { return s.tokens.loading }
func (s *Session) IsLoadingAssetAccessToken() bool { return s.assetToken.loading }
