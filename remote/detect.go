package remote

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/m-manu/sshpath/fmte"
)

const probeTimeout = 10 * time.Second

// Probe checks that the host is reachable and that its stat is GNU coreutils, whose
// --format directives the listing protocol depends on.
func Probe(ctx context.Context, conn *Connection) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	lines, err := conn.ExecuteRequired(ctx, "stat", "--version")
	if err != nil {
		fmte.PrintfV("Remote probe failed: %v\n", err)
		return err
	}
	version := strings.TrimSpace(lines[0])
	if !strings.Contains(version, "GNU coreutils") {
		return fmt.Errorf("%s: stat is not GNU coreutils (got %q)", conn, version)
	}
	fmte.PrintfV("Remote %s detected on %s\n", version, conn)
	return nil
}
