// pkg/interaction/reader.go

package interaction

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// IsInteractive reports whether stdin and stdout are both terminals.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// ReadLine prompts with a label on out and returns a trimmed line of input.
// A final line without a newline is still returned. It returns ctx.Err() as
// soon as ctx is done, even while the read is blocked; the reader must not be
// reused after that.
func ReadLine(ctx context.Context, reader *bufio.Reader, out io.Writer, label string) (string, error) {
	logger := otelzap.Ctx(ctx)
	logger.Debug("Prompting user for input", zap.String("label", label))

	_, _ = fmt.Fprint(out, label+": ")

	type line struct {
		text string
		err  error
	}
	done := make(chan line, 1)
	go func() {
		text, err := reader.ReadString('\n')
		done <- line{text: text, err: err}
	}()

	var got line
	select {
	case <-ctx.Done():
		logger.Debug("Input cancelled", zap.String("label", label))
		return "", ctx.Err()
	case got = <-done:
	}

	if got.err != nil && !(got.err == io.EOF && got.text != "") {
		if got.err != io.EOF {
			logger.Error("Failed to read user input", zap.Error(got.err))
		}
		return "", got.err
	}

	value := strings.TrimSpace(got.text)
	logger.Debug("User input received", zap.String("value", value))
	return value, nil
}

// bufferedReader reuses in when it is already buffered so consecutive
// prompts on one stream do not lose read-ahead.
func bufferedReader(in io.Reader) *bufio.Reader {
	if br, ok := in.(*bufio.Reader); ok {
		return br
	}
	return bufio.NewReader(in)
}
