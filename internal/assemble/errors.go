package assemble

import (
	"errors"
	"fmt"
	"strings"
)

var ErrAssemble = errors.New("assembly failed")

// Reports build-prefix references that survived relocation. Shipping such a
// package would only fail for end users at deployment time, so assembly
// stops here instead.
type RelocationIncompleteError struct {
	Prefix    string
	Offenders []string // View-relative paths still referencing the prefix.
}

func (e *RelocationIncompleteError) Error() string {
	const show = 5
	shown := e.Offenders
	if len(shown) > show {
		shown = shown[:show]
	}
	msg := fmt.Sprintf("relocation incomplete: %d file(s) still reference %s: %s",
		len(e.Offenders), e.Prefix, strings.Join(shown, ", "))
	if len(e.Offenders) > len(shown) {
		msg += fmt.Sprintf(" (+%d more)", len(e.Offenders)-len(shown))
	}
	return msg
}
