package models

import (
	"context"
	"strconv"
	"strings"
	"time"

	"AlertDesk/pkg/cache"
	constants "AlertDesk/pkg/constant"
	apperrors "AlertDesk/pkg/errors"
	"AlertDesk/pkg/response"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	wsTicketPrefix = "ws:ticket:"
	wsTicketUsed   = "ws:ticket:used:"
)

// Authenticator resolves the caller of a request from, in order: a bearer
// token, a ?token= query parameter, a one-time ?uuid= websocket ticket and
// the dashboard cookie session.
type Authenticator struct {
	DB      *gorm.DB
	Tokens  *TokenIssuer
	Tickets cache.Cache
}

func NewAuthenticator(db *gorm.DB, tokens *TokenIssuer, tickets cache.Cache) *Authenticator {
	return &Authenticator{DB: db, Tokens: tokens, Tickets: tickets}
}

// IssueWSTicket stores a short-lived ticket browsers can pass as ?uuid=
// where they cannot set an Authorization header.
func (a *Authenticator) IssueWSTicket(ctx context.Context, user *User, ttl time.Duration) (string, error) {
	if a.Tickets == nil {
		return "", apperrors.New("websocket tickets are not configured")
	}
	ticket := uuid.NewString()
	if err := a.Tickets.Set(ctx, wsTicketPrefix+ticket, strconv.FormatUint(uint64(user.ID), 10), ttl); err != nil {
		return "", apperrors.Wrap(err, "store websocket ticket")
	}
	return ticket, nil
}

// ConsumeWSTicket returns the user a ticket was issued for. A ticket is
// accepted once.
func (a *Authenticator) ConsumeWSTicket(ctx context.Context, ticket string) (uint, error) {
	invalid := apperrors.WithKind(apperrors.KindUnauthorized, "invalid or expired ticket")
	if a.Tickets == nil || ticket == "" {
		return 0, invalid
	}
	v, ok := a.Tickets.Get(ctx, wsTicketPrefix+ticket)
	if !ok {
		return 0, invalid
	}
	// SETNX 保证一次性使用，即便两个连接同时到达
	if first, err := a.Tickets.SetIfAbsent(ctx, wsTicketUsed+ticket, true, 5*time.Minute); err != nil || !first {
		return 0, invalid
	}
	_ = a.Tickets.Delete(ctx, wsTicketPrefix+ticket)

	s, _ := v.(string)
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, invalid
	}
	return uint(id), nil
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func sessionUserID(c *gin.Context) uint {
	if _, ok := c.Get(sessions.DefaultKey); !ok {
		return 0
	}
	id, _ := sessions.Default(c).Get(constants.SessionUserID).(uint)
	return id
}

// Resolve identifies the caller without writing a response.
func (a *Authenticator) Resolve(c *gin.Context) (*User, error) {
	ctx := c.Request.Context()
	var userID uint
	switch {
	case bearerToken(c) != "":
		id, err := a.Tokens.Verify(bearerToken(c), TokenTypeAccess)
		if err != nil {
			return nil, err
		}
		userID = id.UserID
	case c.Query("token") != "":
		id, err := a.Tokens.Verify(c.Query("token"), TokenTypeAccess)
		if err != nil {
			return nil, err
		}
		userID = id.UserID
	case c.Query("uuid") != "":
		id, err := a.ConsumeWSTicket(ctx, c.Query("uuid"))
		if err != nil {
			return nil, err
		}
		userID = id
	default:
		userID = sessionUserID(c)
	}
	if userID == 0 {
		return nil, apperrors.WithKind(apperrors.KindUnauthorized, "authentication credentials were not provided")
	}

	user, err := GetUserByID(ctx, a.DB, userID)
	if err != nil {
		return nil, apperrors.WithKind(apperrors.KindUnauthorized, "user not found")
	}
	return user, nil
}

// Required is the gin middleware guarding authenticated routes.
func (a *Authenticator) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := a.Resolve(c)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Set(constants.UserField, user)
		c.Set(constants.IdentityField, user.Identity())
		c.Next()
	}
}

// AdminRequired must run after Required.
func AdminRequired(c *gin.Context) {
	id, ok := CurrentIdentity(c)
	if !ok || !id.IsAdmin() {
		response.Error(c, apperrors.WithKind(apperrors.KindForbidden, "administrator role required"))
		return
	}
	c.Next()
}

func CurrentUser(c *gin.Context) *User {
	if v, ok := c.Get(constants.UserField); ok {
		if u, ok := v.(*User); ok {
			return u
		}
	}
	return nil
}

func CurrentIdentity(c *gin.Context) (Identity, bool) {
	if v, ok := c.Get(constants.IdentityField); ok {
		id, ok := v.(Identity)
		return id, ok
	}
	return Identity{}, false
}

// Login remembers the user in the cookie session when sessions are enabled.
func Login(c *gin.Context, user *User) {
	if _, ok := c.Get(sessions.DefaultKey); !ok {
		return
	}
	session := sessions.Default(c)
	session.Set(constants.SessionUserID, user.ID)
	_ = session.Save()
}

func Logout(c *gin.Context) {
	if _, ok := c.Get(sessions.DefaultKey); !ok {
		return
	}
	session := sessions.Default(c)
	session.Delete(constants.SessionUserID)
	_ = session.Save()
}
