// Package group implements runtime.Group, the container that keeps a
// supervised child and all of its descendants together.
//
// On Linux every child runs in its own process group and, when the service
// runs as root on a cgroup v2 host, also inside a dedicated cgroup; the cgroup
// still holds descendants that moved to another process group or session.
// Other Unix systems rely on process groups alone. On Windows children are
// assigned to a job object created with JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE.
package group

import (
	"strings"

	"github.com/google/uuid"
)

// instanceName derives a unique, filesystem and object-namespace safe name
// for the container of service name.
func instanceName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		b.WriteString("service")
	}
	return b.String() + "-" + uuid.NewString()
}
