// pkg/interaction/prompt.go

package interaction

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// PromptSelect displays numbered options and returns the chosen index.
// Invalid entries re-prompt until input is exhausted or ctx is done.
func PromptSelect(ctx context.Context, in io.Reader, out io.Writer, prompt string, options []string) (int, error) {
	logger := otelzap.Ctx(ctx)
	if len(options) == 0 {
		return -1, cerr.AssertionFailedf("PromptSelect called with no options")
	}
	logger.Debug("Prompting selection", zap.String("prompt", prompt), zap.Int("num_options", len(options)))

	_, _ = fmt.Fprintln(out, prompt)
	for i, option := range options {
		_, _ = fmt.Fprintf(out, "  %d) %s\n", i+1, option)
	}

	reader := bufferedReader(in)
	for {
		if err := ctx.Err(); err != nil {
			return -1, err
		}
		choice, err := ReadLine(ctx, reader, out, EnterChoicePrompt)
		if err == io.EOF {
			return -1, ErrNoChoice
		}
		if err != nil {
			return -1, cerr.Wrap(err, "read selection")
		}

		idx, err := strconv.Atoi(choice)
		if err == nil && idx >= 1 && idx <= len(options) {
			logger.Info("User selected option", zap.Int("index", idx), zap.String("value", options[idx-1]))
			return idx - 1, nil
		}

		logger.Warn("Invalid selection", zap.String("input", choice))
		_, _ = fmt.Fprintln(out, "Invalid selection. Please try again.")
	}
}

// PromptYesNo asks a yes/no question. Unknown or empty input yields the
// default, as does a read error or cancellation.
func PromptYesNo(ctx context.Context, in io.Reader, out io.Writer, prompt string, defaultYes bool) bool {
	defPrompt := DefaultYesPrompt
	if !defaultYes {
		defPrompt = DefaultNoPrompt
	}
	label := fmt.Sprintf("%s [%s]", prompt, defPrompt)

	input, err := ReadLine(ctx, bufferedReader(in), out, label)
	if err != nil {
		return defaultYes
	}
	if answer, ok := NormalizeYesNoInput(input); ok {
		return answer
	}
	otelzap.Ctx(ctx).Debug("Default applied", zap.String("prompt", prompt), zap.Bool("default_yes", defaultYes))
	return defaultYes
}

// NormalizeYesNoInput returns (answer, recognised).
func NormalizeYesNoInput(input string) (bool, bool) {
	switch strings.TrimSpace(strings.ToLower(input)) {
	case YesShort, YesLong:
		return true, true
	case NoShort, NoLong:
		return false, true
	}
	return false, false
}
