package keydir

import (
	"time"

	"convokey/internal/domain"
)

// JSON bodies shared by Server and HTTPClient.

type sessionRequest struct {
	UserID domain.UserID `json:"user_id"`
}

type sessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type membersResponse struct {
	Members []domain.UserID `json:"members"`
}

type existsResponse struct {
	Exists bool `json:"exists"`
}

type claimResponse struct {
	Won bool `json:"won"`
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}
