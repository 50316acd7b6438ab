package errors

import "github.com/pkg/errors"

var (
	// pool errors
	ErrPoolExhausted = errors.New("connection pool exhausted")
	ErrPoolClosed    = errors.New("connection pool closed")

	// account errors
	ErrAccountNotFound      = errors.New("mailbox account not found")
	ErrAccountInactive      = errors.New("mailbox account inactive or sync disabled")
	ErrInvalidAccountConfig = errors.New("invalid mailbox account configuration")

	// folder / protocol errors
	ErrFolderNotFound    = errors.New("folder not found")
	ErrFolderLockTimeout = errors.New("timed out waiting for folder lock")
	ErrNotConnected      = errors.New("client not connected")
	ErrMalformedMessage  = errors.New("malformed message")

	// scheduler errors
	ErrSyncJobNotFound  = errors.New("no sync job for account")
	ErrSchedulerStopped = errors.New("sync scheduler stopped")
)
