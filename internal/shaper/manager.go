package shaper

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"latctl/internal/execx"
)

// Manager applies tc command plans to the host. It is injectable for unit
// tests.
type Manager struct {
	r execx.Runner
}

func NewManager(r execx.Runner) *Manager {
	if r == nil {
		r = execx.NewOSRunner(os.Stdout, os.Stderr)
	}
	return &Manager{r: r}
}

// Apply runs each command in order, waiting for completion before issuing
// the next. The first non-tolerated failure aborts the run; previously
// applied commands are not rolled back, so the interface may be left
// partially configured.
func (m *Manager) Apply(cmds []Command) error {
	for _, c := range cmds {
		if err := m.r.Run(c.Name, c.Args...); err != nil {
			if c.TolerateError {
				logrus.Debugf("ignoring %q: %v", c.String(), err)
				continue
			}
			return fmt.Errorf("%s: %w", c.String(), err)
		}
	}
	return nil
}

// Clear removes the root qdisc from iface, tolerating absence.
func (m *Manager) Clear(iface string) error {
	err := m.r.Run("tc", "qdisc", "del", "dev", iface, "root")
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "No such file or directory") ||
		strings.Contains(msg, "Cannot find specified qdisc") ||
		strings.Contains(msg, "Cannot delete qdisc with handle of zero") {
		return nil
	}
	return err
}

// Status returns the qdisc and class state of iface as reported by tc.
func (m *Manager) Status(iface string) (string, error) {
	if iface == "" {
		return "", fmt.Errorf("interface is required")
	}
	qdiscOut, qdiscErr := m.r.Output("tc", "qdisc", "show", "dev", iface)
	classOut, classErr := m.r.Output("tc", "class", "show", "dev", iface)
	if qdiscErr != nil && classErr != nil {
		return "", fmt.Errorf("tc qdisc: %v; tc class: %v", qdiscErr, classErr)
	}
	var b strings.Builder
	if qdiscOut != "" {
		b.WriteString("qdisc:\n")
		b.WriteString(qdiscOut)
	}
	if classOut != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("class:\n")
		b.WriteString(classOut)
	}
	return b.String(), nil
}
