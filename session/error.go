// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import "errors"

var (
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrNilParameter      = errors.New("nil parameter")
	ErrIdGeneratorFailed = errors.New("id generation failed")
	ErrDecode            = errors.New("unable to decode value")
	ErrStore             = errors.New("store operation failed")
)
