// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package blog

import (
	"context"
	"errors"
	"fmt"

	"draftledger/internal/policy"
	"draftledger/internal/store"
)

// Kind classifies a service error for the transport layer.
type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindUpstream   Kind = "upstream"
)

// Sentinels matched with errors.Is. Every *Error unwraps to the sentinel of
// its Kind, and some carry a more specific one as well.
var (
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
	ErrUpstream   = errors.New("generation service failed")

	// ErrInvalidTransition is a lifecycle move the status table forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStaleRevision means the post's head moved past the caller's base.
	ErrStaleRevision = errors.New("stale base revision")
	// ErrTimeout means a generation call ran out of time.
	ErrTimeout = errors.New("generation timed out")
)

var kindSentinels = map[Kind]error{
	KindValidation: ErrValidation,
	KindConflict:   ErrConflict,
	KindNotFound:   ErrNotFound,
	KindUpstream:   ErrUpstream,
}

// Error is returned by every Service operation that fails for a reason the
// caller can act on. Msg is safe to show to clients; Err is the cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

// Unwrap exposes both the Kind sentinel and the cause.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s, ok := kindSentinels[e.Kind]; ok {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Retryable reports whether repeating the request may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindUpstream || errors.Is(e.Err, ErrStaleRevision)
}

// KindOf returns the Kind of err, or "" when err is not a service error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func invalid(op, msg string) error {
	return &Error{Kind: KindValidation, Op: op, Msg: msg}
}

func conflict(op, msg string, cause error) error {
	return &Error{Kind: KindConflict, Op: op, Msg: msg, Err: cause}
}

// upstream wraps a generation failure. Deadline expiry gets its own
// sentinel so the transport can answer with a timeout status.
func upstream(op string, err error) error {
	if errors.Is(err, policy.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindUpstream, Op: op, Msg: "generation timed out", Err: fmt.Errorf("%w: %w", ErrTimeout, err)}
	}
	return &Error{Kind: KindUpstream, Op: op, Msg: "generation service failed", Err: err}
}

// fromStore maps storage sentinels onto service errors. Unknown errors are
// returned wrapped and are treated as internal failures by the transport.
func fromStore(op string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return &Error{Kind: KindNotFound, Op: op, Msg: "post not found", Err: err}
	case errors.Is(err, store.ErrStaleHead):
		return &Error{Kind: KindConflict, Op: op, Msg: "post changed since it was read; reload and retry", Err: fmt.Errorf("%w: %w", ErrStaleRevision, err)}
	case errors.Is(err, store.ErrTitleAlreadySet):
		return conflict(op, "title is already set", err)
	case errors.Is(err, store.ErrStatusChanged):
		return conflict(op, "post status changed concurrently", err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
