// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

package bundle

import (
	"github.com/samber/oops"

	"github.com/simbridge/simbridge/internal/host"
)

// Error codes for build failures.
const (
	CodeBuildFailed      = "BUILD_FAILED"
	CodeCacheReadFailed  = "CACHE_READ_FAILED"
	CodeCacheWriteFailed = "CACHE_WRITE_FAILED"
)

// ErrBuildFailed wraps a bundler or input failure for role.
func ErrBuildFailed(role host.Role, cause error) error {
	return oops.Code(CodeBuildFailed).
		With("role", role.String()).
		Wrapf(cause, "build %s", role)
}

func errCacheRead(path string, cause error) error {
	return oops.Code(CodeCacheReadFailed).
		With("path", path).
		Wrapf(cause, "read cache descriptor")
}

func errCacheWrite(path string, cause error) error {
	return oops.Code(CodeCacheWriteFailed).
		With("path", path).
		Wrapf(cause, "write %s", path)
}
