/* pkg/interaction/types.go */

package interaction

import "errors"

const (
	DefaultYesPrompt  = "Y/n"
	DefaultNoPrompt   = "y/N"
	EnterChoicePrompt = "Enter choice number"
)

const (
	YesShort = "y"
	YesLong  = "yes"
	NoShort  = "n"
	NoLong   = "no"
)

// ErrNoChoice is returned when input ends before a valid selection.
var ErrNoChoice = errors.New("no selection made")
