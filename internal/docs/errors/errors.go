// Package errors provides sentinel errors for content discovery.
package errors

import "errors"

var (
	// ErrContentRootNotFound indicates the configured content root does not exist.
	ErrContentRootNotFound = errors.New("content root not found")

	// ErrContentRootNotDir indicates the content root exists but is not a directory.
	ErrContentRootNotDir = errors.New("content root is not a directory")

	// ErrDirUnreadable indicates a directory below the root could not be listed.
	ErrDirUnreadable = errors.New("directory unreadable")

	// ErrSymlinkSkipped indicates a symbolic link was encountered and not followed.
	ErrSymlinkSkipped = errors.New("symlink not followed")
)
