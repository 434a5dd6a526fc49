package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidOrder        = errors.New("invalid order parameters")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrRejected            = errors.New("order rejected")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrNoMarket            = errors.New("no market data")
	ErrRateLimited         = errors.New("rate limited")
	ErrIntentTimeout       = errors.New("order intent timed out")
	ErrWSDisconnect        = errors.New("websocket disconnected")
)
