package mnemon

import (
	"fmt"
	"strings"
	"time"
)

// ConstructSystem assembles the position-0 system message: the static system
// preamble followed by the memory section. It is regenerated on every step so
// core memory edits and store growth are visible immediately.
func ConstructSystem(system string, core *CoreMemory, recallCount, archivalCount int, at time.Time) string {
	var b strings.Builder
	b.WriteString(system)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "### Memory [last modified: %s]\n", FormatTime(at))
	fmt.Fprintf(&b, "%d previous messages between you and the user are stored in recall memory (use functions to access them)\n", recallCount)
	fmt.Fprintf(&b, "%d total memories you created are stored in archival memory (use functions to access them)\n", archivalCount)
	b.WriteString("\nCore memory shown below (limited in size, additional information stored in archival / recall memory):\n")
	fmt.Fprintf(&b, "<persona characters=\"%d/%d\">\n%s\n</persona>\n",
		len(core.Persona()), core.PersonaLimit(), core.Persona())
	fmt.Fprintf(&b, "<human characters=\"%d/%d\">\n%s\n</human>",
		len(core.Human()), core.HumanLimit(), core.Human())
	return b.String()
}
