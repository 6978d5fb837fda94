// Package jobs implements the ingestion pipeline: the job model, the
// scheduler, and the six concrete sweeps.
package jobs

import (
	"context"
	"errors"
	"fmt"
)

// Job is one unit of pipeline work, executed under a per-name mutex.
type Job interface {
	Name() string
	Execute(ctx context.Context) error
}

// Kind classifies job failures.
type Kind string

const (
	KindDatabase    Kind = "database"
	KindExternalAPI Kind = "external_api"
	KindEmbedding   Kind = "embedding"
	KindIO          Kind = "io"
	KindValidation  Kind = "validation"
	KindRateLimit   Kind = "rate_limit"
	KindNotFound    Kind = "not_found"
	KindConfig      Kind = "config"
	KindOther       Kind = "other"
)

// Error is a classified job failure.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Msg != "" {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// DatabaseErr wraps a storage failure.
func DatabaseErr(err error) error { return &Error{Kind: KindDatabase, Err: err} }

// ExternalAPIErr wraps an upstream HTTP failure.
func ExternalAPIErr(err error) error { return &Error{Kind: KindExternalAPI, Err: err} }

// EmbeddingErr wraps a model or tokenizer failure.
func EmbeddingErr(err error) error { return &Error{Kind: KindEmbedding, Err: err} }

// ValidationErr marks malformed upstream data.
func ValidationErr(msg string, err error) error {
	return &Error{Kind: KindValidation, Msg: msg, Err: err}
}

// ConfigErr marks a configuration problem.
func ConfigErr(msg string) error { return &Error{Kind: KindConfig, Msg: msg} }

const noWorkMsg = "no_work"

// ErrNoWork is the control signal a continuous job returns when nothing
// is pending. It is never treated as a failure.
var ErrNoWork error = &Error{Kind: KindOther, Msg: noWorkMsg}

// IsNoWork reports whether err is the no-work control signal.
func IsNoWork(err error) bool {
	var je *Error
	return errors.As(err, &je) && je.Kind == KindOther && je.Msg == noWorkMsg
}
