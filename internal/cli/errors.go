package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/odysseus0/campusfeed/internal/docstore"
	"github.com/odysseus0/campusfeed/internal/ingest"
	"github.com/odysseus0/campusfeed/internal/posts"
	"github.com/odysseus0/campusfeed/internal/talk"
)

const (
	exitInvalidInput = 2
	exitNotFound     = 3
	exitInternal     = 1
)

func isInvalidInput(err error) bool {
	if errors.Is(err, docstore.ErrInvalidInput) ||
		errors.Is(err, posts.ErrInvalidInput) ||
		errors.Is(err, talk.ErrEmptyQuestion) ||
		ingest.IsValidation(err) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "invalid output format")
}

func ErrorExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case isInvalidInput(err):
		return exitInvalidInput
	case errors.Is(err, docstore.ErrNotFound):
		return exitNotFound
	default:
		return exitInternal
	}
}

func FormatError(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case isInvalidInput(err):
		return fmt.Sprintf("Error [invalid-input]: %v", err)
	case errors.Is(err, docstore.ErrNotFound):
		return fmt.Sprintf("Error [not-found]: %v", err)
	default:
		if kind, ok := ingest.KindOf(err); ok {
			return fmt.Sprintf("Error [%s]: %v", kind, err)
		}
		return fmt.Sprintf("Error [internal]: %v", err)
	}
}

func PrintError(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, FormatError(err))
}
