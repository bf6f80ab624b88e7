// Package mocks holds generated mocks of domain interfaces.
//
//go:generate mockgen -destination=mock_directory.go -package=mocks convokey/internal/domain/interfaces KeyDirectory
package mocks
