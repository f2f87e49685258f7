package httpapi

import "github.com/pulsefit/pulseauth"

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken   string `json:"access_token"`
	RefreshToken  string `json:"refresh_token"`
	ExpireSeconds int    `json:"expire_seconds"`
}

type userInfo struct {
	UserID      int64    `json:"user_id"`
	Username    string   `json:"username"`
	Email       string   `json:"email,omitempty"`
	Status      string   `json:"status"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

type loginResponse struct {
	tokenResponse
	UserInfo userInfo `json:"user_info"`
}

type logoutResponse struct {
	SessionID string `json:"session_id"`
	Existed   bool   `json:"existed"`
	Timestamp int64  `json:"timestamp"`
}

func userInfoFrom(p *pulseauth.Principal) userInfo {
	return userInfo{
		UserID:      p.UserID,
		Username:    p.Username,
		Email:       p.Email,
		Status:      p.Status,
		Roles:       p.Roles,
		Permissions: p.Permissions,
	}
}
