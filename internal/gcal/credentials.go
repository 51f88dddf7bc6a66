package gcal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/koyomi-dev/koyomi/internal/config"
	"github.com/koyomi-dev/koyomi/internal/logx"
	"github.com/koyomi-dev/koyomi/internal/server/db"
)

// expirySkew is subtracted from the stored expiry when judging usability so
// a token is refreshed slightly before the wire deadline.
const expirySkew = 30 * time.Second

// Credential is a resolved, currently-valid OAuth2 credential scoped to one
// caller's requested scope set.
type Credential struct {
	AccessToken  string
	RefreshToken string
	TokenURI     string
	ClientID     string
	ClientSecret string
	Expiry       time.Time
	Scopes       []string
}

// TokenStore is the slice of the database the resolver needs.
type TokenStore interface {
	GetGoogleToken(userID int64) (*db.GoogleToken, error)
	UpdateGoogleTokenSecrets(userID int64, accessToken, refreshToken string, expiry time.Time) error
}

// Resolver turns a stored credential record into a usable credential,
// refreshing and persisting rotated secrets on demand.
//
// Two workers resolving the same expired record concurrently will both
// refresh; the single-statement persist means last write wins and the
// loser's token stays individually valid. Benign race, left unlocked.
type Resolver struct {
	store  TokenStore
	client *http.Client
	now    func() time.Time
}

func NewResolver(store TokenStore) *Resolver {
	return &Resolver{
		store:  store,
		client: &http.Client{Timeout: 15 * time.Second},
		now:    time.Now,
	}
}

// Usable reports whether an access token can still be presented. Pure in
// (token, expiry, now); a zero expiry counts as expired.
func Usable(accessToken string, expiry time.Time, now time.Time) bool {
	if accessToken == "" || expiry.IsZero() {
		return false
	}
	return now.Add(expirySkew).Before(expiry)
}

// Resolve returns a credential for userID scoped to exactly the requested
// scopes, refreshing first when the stored access token is unusable.
func (r *Resolver) Resolve(ctx context.Context, userID int64, scopes []string) (*Credential, *Error) {
	rec, err := r.store.GetGoogleToken(userID)
	if err != nil {
		return nil, Errf(KindTransport, "load credential for user %d: %v", userID, err)
	}
	if rec == nil {
		return nil, Errf(KindNoCredential, "user %d has no Google credential", userID)
	}

	tokenURI := rec.TokenURI
	if tokenURI == "" {
		tokenURI = config.DefaultTokenURI
	}

	cred := &Credential{
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		TokenURI:     tokenURI,
		ClientID:     rec.ClientID,
		ClientSecret: rec.ClientSecret,
		Expiry:       rec.Expiry,
		Scopes:       scopes,
	}

	if Usable(rec.AccessToken, rec.Expiry, r.now()) {
		return cred, nil
	}
	if rec.RefreshToken == "" {
		return nil, Errf(KindUnrefreshable,
			"user %d: access token expired and no refresh token stored", userID)
	}

	refreshed, rerr := r.refresh(ctx, cred)
	if rerr != nil {
		return nil, rerr
	}

	// Persist before returning; the stored record and the returned
	// credential must not diverge.
	if err := r.store.UpdateGoogleTokenSecrets(
		userID, refreshed.AccessToken, refreshed.newRefreshToken, refreshed.Expiry,
	); err != nil {
		return nil, Errf(KindTransport, "persist refreshed credential for user %d: %v", userID, err)
	}
	logx.Debugf("refreshed Google credential for user %d (expiry %s)", userID, refreshed.Expiry.Format(time.RFC3339))

	cred.AccessToken = refreshed.AccessToken
	cred.Expiry = refreshed.Expiry
	if refreshed.newRefreshToken != "" {
		cred.RefreshToken = refreshed.newRefreshToken
	}
	return cred, nil
}

type refreshOutcome struct {
	AccessToken string
	Expiry      time.Time
	// newRefreshToken is empty when the provider did not reissue one.
	newRefreshToken string
}

// refresh performs the token-endpoint round-trip. The stored record is not
// touched here; persistence is the caller's single write.
func (r *Resolver) refresh(ctx context.Context, cred *Credential) (*refreshOutcome, *Error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", cred.RefreshToken)
	form.Set("client_id", cred.ClientID)
	form.Set("client_secret", cred.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cred.TokenURI,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, Errf(KindTransport, "build refresh request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, Errf(KindTransport, "refresh round-trip: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, Errf(KindRefreshFailed, "token endpoint returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr struct {
		AccessToken  string `json:"access_token"`
		ExpiresIn    int    `json:"expires_in"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, Errf(KindTransport, "decode refresh response: %v", err)
	}
	if tr.AccessToken == "" {
		return nil, Errf(KindRefreshFailed, "token endpoint returned no access_token")
	}

	return &refreshOutcome{
		AccessToken:     tr.AccessToken,
		Expiry:          r.now().Add(time.Duration(tr.ExpiresIn) * time.Second),
		newRefreshToken: tr.RefreshToken,
	}, nil
}
