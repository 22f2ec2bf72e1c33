package tui

import (
	"errors"
	"fmt"

	"github.com/pders01/newsroom/internal/api"
	"github.com/pders01/newsroom/internal/table"
)

// wrapErr formats an error with a contextual prefix.
func wrapErr(context string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// quiet reports errors that never reach the status bar. A superseded
// operation was replaced by a newer one the user asked for.
func quiet(err error) bool {
	return err == nil || errors.Is(err, table.ErrSuperseded)
}

// describeErr is the banner text of err. Validation and backend messages
// are shown as they are; anything else keeps its context chain.
func describeErr(err error) string {
	var ve *api.ValidationError
	var be *api.BackendError
	var me *api.MalformedResponseError
	switch {
	case errors.As(err, &ve), errors.As(err, &be), errors.As(err, &me):
		return api.UserMessage(err)
	}
	return err.Error()
}
