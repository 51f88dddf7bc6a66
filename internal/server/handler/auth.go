package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/api/idtoken"

	"github.com/koyomi-dev/koyomi/internal/auth"
	"github.com/koyomi-dev/koyomi/internal/config"
	"github.com/koyomi-dev/koyomi/internal/gcal"
	"github.com/koyomi-dev/koyomi/internal/logx"
	"github.com/koyomi-dev/koyomi/internal/server/db"
)

// callerID returns the authenticated user id set by the auth middleware.
func callerID(c *gin.Context) int64 {
	return c.GetInt64("user_id")
}

// IDTokenVerifier validates a Google id_token and extracts the identity.
// Injected so handlers are testable without Google's certificate endpoint.
type IDTokenVerifier func(ctx context.Context, rawToken string) (email, name string, err error)

// NewGoogleVerifier verifies id_tokens against the deployment's client id.
func NewGoogleVerifier(clientID string) IDTokenVerifier {
	return func(ctx context.Context, rawToken string) (string, string, error) {
		payload, err := idtoken.Validate(ctx, rawToken, clientID)
		if err != nil {
			return "", "", fmt.Errorf("validate id_token: %w", err)
		}
		email, _ := payload.Claims["email"].(string)
		if email == "" {
			return "", "", fmt.Errorf("no email in id_token")
		}
		name, _ := payload.Claims["name"].(string)
		return email, name, nil
	}
}

type googleLoginRequest struct {
	IDToken string `json:"id_token" binding:"required"`
	// Optional provider tokens captured from the client-side OAuth flow.
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// HandleGoogleLogin handles POST /v1/auth/google.
// Verifies the Google id_token, gets or creates the account, stores the
// provider tokens when the client passed them along, and issues an app JWT
// pair.
func HandleGoogleLogin(store *db.Store, issuer *auth.TokenIssuer, verify IDTokenVerifier, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req googleLoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		email, name, err := verify(c.Request.Context(), req.IDToken)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid Google token"})
			return
		}

		user, err := store.GetOrCreateUserByEmail(email, name)
		if err != nil {
			logx.Errorf("GetOrCreateUserByEmail(%q): %v", email, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load account"})
			return
		}

		if req.AccessToken != "" || req.RefreshToken != "" {
			if err := store.UpsertGoogleToken(&db.GoogleToken{
				UserID:       user.ID,
				AccessToken:  req.AccessToken,
				RefreshToken: req.RefreshToken,
				ClientID:     cfg.GoogleClientID,
				ClientSecret: cfg.GoogleClientSecret,
				TokenURI:     cfg.TokenURI,
				Expiry:       expiryFrom(req.ExpiresIn),
			}); err != nil {
				logx.Errorf("UpsertGoogleToken user=%d: %v", user.ID, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store Google token"})
				return
			}
		}

		access, refresh, err := issuer.IssuePair(user.ID)
		if err != nil {
			logx.Errorf("IssuePair user=%d: %v", user.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue tokens"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"access":  access,
			"refresh": refresh,
			"user": gin.H{
				"id":    user.ID,
				"email": user.Email,
				"name":  user.Name,
			},
		})
	}
}

type saveTokenRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token" binding:"required"`
	ExpiresIn    int    `json:"expires_in"`
}

// HandleSaveGoogleToken handles POST /v1/auth/google/save-token.
func HandleSaveGoogleToken(store *db.Store, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req saveTokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		userID := callerID(c)
		if err := store.UpsertGoogleToken(&db.GoogleToken{
			UserID:       userID,
			AccessToken:  req.AccessToken,
			RefreshToken: req.RefreshToken,
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			TokenURI:     cfg.TokenURI,
			Expiry:       expiryFrom(req.ExpiresIn),
		}); err != nil {
			logx.Errorf("UpsertGoogleToken user=%d: %v", userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store Google token"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "saved"})
	}
}

// HandleAccount handles GET /v1/auth/account.
func HandleAccount(store *db.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := store.GetUser(callerID(c))
		if err != nil {
			logx.Errorf("GetUser(%d): %v", callerID(c), err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load account"})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":    user.ID,
			"email": user.Email,
			"name":  user.Name,
		})
	}
}

type refreshRequest struct {
	Refresh string `json:"refresh" binding:"required"`
}

// HandleRefresh handles POST /v1/auth/refresh: exchanges a live refresh
// token for a fresh access token. A blacklisted jti is rejected, which is
// what makes logout effective.
func HandleRefresh(store *db.Store, issuer *auth.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req refreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		claims, err := issuer.Parse(req.Refresh, auth.TypeRefresh)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		revoked, err := store.IsJTIRevoked(claims.ID)
		if err != nil {
			logx.Errorf("IsJTIRevoked(%q): %v", claims.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check token"})
			return
		}
		if revoked {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token is blacklisted"})
			return
		}

		access, err := issuer.IssueAccess(claims.UserID)
		if err != nil {
			logx.Errorf("IssueAccess user=%d: %v", claims.UserID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"access": access})
	}
}

// HandleLogout handles POST /v1/auth/logout: blacklists the refresh token's
// jti until its natural expiry, after which /v1/auth/refresh rejects it.
func HandleLogout(store *db.Store, issuer *auth.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req refreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		claims, err := issuer.Parse(req.Refresh, auth.TypeRefresh)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token"})
			return
		}

		if err := store.RevokeJTI(claims.ID, claims.ExpiresAt.Time); err != nil {
			logx.Errorf("RevokeJTI(%q): %v", claims.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke token"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "successfully logged out"})
	}
}

// HandleGmailTest handles GET /v1/auth/google/test: a round-trip to the
// Gmail profile endpoint proving the stored credential is usable.
func HandleGmailTest(gw *gcal.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		addr, gerr := gw.MailProfile(c.Request.Context(), callerID(c))
		if gerr != nil {
			status := http.StatusBadGateway
			if gerr.Kind == gcal.KindNoCredential {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"error": gerr.Message})
			return
		}
		c.JSON(http.StatusOK, gin.H{"email_address": addr})
	}
}

func expiryFrom(expiresIn int) time.Time {
	if expiresIn <= 0 {
		return time.Time{}
	}
	return time.Now().Add(time.Duration(expiresIn) * time.Second)
}
