package models

import (
	"time"
)

// Hello asks for a greeting. Name may come from the path, query or body.
type Hello struct {
	Name string `json:"name" form:"name" uri:"name" xml:"Name" yaml:"name"`
}

// HelloResponse carries the greeting
type HelloResponse struct {
	Result string `json:"result" xml:"Result" yaml:"result"`
}

// TestAuth is echoed back to prove the request got through the auth pipeline
type TestAuth struct{}

// Session requests the caller's current session
type Session struct{}

// TransGif, TransGif2 and TransGif3 request the transparent pixel in its three flavours
type TransGif struct{}

type TransGif2 struct{}

type TransGif3 struct{}

// FallbackForClientRoutes captures any path no other route matched
type FallbackForClientRoutes struct {
	PathInfo string `json:"path_info" xml:"PathInfo" yaml:"path_info"`
}

// Authenticate is the credentials login request
type Authenticate struct {
	Provider   string `json:"provider" form:"provider" uri:"provider" xml:"Provider" yaml:"provider"`
	UserName   string `json:"username" form:"username" xml:"UserName" yaml:"username" validate:"required"`
	Password   string `json:"password" form:"password" xml:"Password" yaml:"password" validate:"required"`
	RememberMe bool   `json:"remember_me" form:"rememberMe" xml:"RememberMe" yaml:"remember_me"`
	Continue   string `json:"continue" form:"continue" xml:"Continue" yaml:"continue"`
}

// AuthenticateResponse is returned after a successful login or by /auth
type AuthenticateResponse struct {
	UserID      string `json:"user_id" xml:"UserId" yaml:"user_id"`
	SessionID   string `json:"session_id" xml:"SessionId" yaml:"session_id"`
	UserName    string `json:"user_name" xml:"UserName" yaml:"user_name"`
	DisplayName string `json:"display_name" xml:"DisplayName" yaml:"display_name"`
	ReferrerURL string `json:"referrer_url,omitempty" xml:"ReferrerUrl,omitempty" yaml:"referrer_url,omitempty"`
}

// AuthUserSession is the per-user state kept in the cache client
type AuthUserSession struct {
	ID              string    `json:"id" xml:"Id" yaml:"id"`
	UserAuthID      string    `json:"user_auth_id" xml:"UserAuthId" yaml:"user_auth_id"`
	UserAuthName    string    `json:"user_auth_name" xml:"UserAuthName" yaml:"user_auth_name"`
	UserName        string    `json:"user_name" xml:"UserName" yaml:"user_name"`
	DisplayName     string    `json:"display_name" xml:"DisplayName" yaml:"display_name"`
	Email           string    `json:"email" xml:"Email" yaml:"email"`
	AuthProvider    string    `json:"auth_provider" xml:"AuthProvider" yaml:"auth_provider"`
	IsAuthenticated bool      `json:"is_authenticated" xml:"IsAuthenticated" yaml:"is_authenticated"`
	Roles           []string  `json:"roles,omitempty" xml:"Roles>Role,omitempty" yaml:"roles,omitempty"`
	Permissions     []string  `json:"permissions,omitempty" xml:"Permissions>Permission,omitempty" yaml:"permissions,omitempty"`
	Perm            bool      `json:"perm,omitempty" xml:"Perm,omitempty" yaml:"perm,omitempty"` // remember-me, keeps the long expiry
	CreatedAt       time.Time `json:"created_at" xml:"CreatedAt" yaml:"created_at"`
	LastModified    time.Time `json:"last_modified" xml:"LastModified" yaml:"last_modified"`
}

// transparentGif is a 1x1 transparent GIF
var transparentGif = [...]byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x21, 0xF9, 0x04,
	0x01, 0x00, 0x00, 0x00, 0x00, 0x2C, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
}

// TransparentGif returns a fresh copy of the 1x1 transparent GIF bytes
func TransparentGif() []byte {
	b := make([]byte, len(transparentGif))
	copy(b, transparentGif[:])
	return b
}
