package common

import (
	"context"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
)

// Finalizer collects resources for convenient cleanup.
type Finalizer struct {
	resources []io.Closer
}

// NewFinalizer returns a new Finalizer.
func NewFinalizer() *Finalizer {
	return &Finalizer{}
}

// Add one or more io.Closer to the finalizer.
func (r *Finalizer) Add(cs ...io.Closer) {
	r.resources = append(r.resources, cs...)
}

type fnCloser func()

func (f fnCloser) Close() error {
	f()
	return nil
}

// AddFn one or more func() to the finalizer.
func (r *Finalizer) AddFn(fs ...func()) {
	for _, f := range fs {
		r.resources = append(r.resources, fnCloser(f))
	}
}

// Cleanup closes all resources in reverse order and joins their errors with err.
func (r *Finalizer) Cleanup(err error) error {
	var errs []error
	for i := len(r.resources) - 1; i >= 0; i-- {
		if e := r.resources[i].Close(); e != nil {
			errs = append(errs, e)
		}
	}
	return multierror.Append(err, errs...).ErrorOrNil()
}

// Cleanupf closes all resources with a formatted err.
func (r *Finalizer) Cleanupf(format string, err error) error {
	if err != nil {
		return r.Cleanup(fmt.Errorf(format, err))
	}
	return r.Cleanup(nil)
}

// NewContextCloser transforms context cancellation function to be used with finalizer.
func NewContextCloser(cancel context.CancelFunc) io.Closer {
	return fnCloser(cancel)
}
