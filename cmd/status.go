package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/hearthdesk/hearth/internal/config"
	"github.com/hearthdesk/hearth/internal/lockfile"
	"github.com/hearthdesk/hearth/internal/netprobe"
)

// CreateStatusCmd creates the status command. It inspects the instance
// lock and probes the claimed port, without talking to a running host
// application.
func CreateStatusCmd() *cobra.Command {
	var workDir string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the supervised server status",
		Run: func(_ *cobra.Command, _ []string) {
			if workDir == "" {
				workDir = config.DefaultWorkDir()
			}
			path := filepath.Join(workDir, lockfile.FileName)

			claim, err := lockfile.Read(path)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Println("hearth-server: not running")
					return
				}
				fmt.Fprintf(os.Stderr, "cannot read %s: %v\n", path, err)
				os.Exit(1)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if netprobe.IsOurServer(ctx, claim.Port, "") {
				fmt.Printf("hearth-server: running (pid %d, port %d)\n", claim.PID, claim.Port)
				return
			}
			fmt.Printf("hearth-server: lock claim present (pid %d, port %d) but the server is not responding\n",
				claim.PID, claim.Port)
			os.Exit(1)
		},
	}
	cmd.Flags().StringVar(&workDir, "work-dir", "", "Work directory holding the instance lock")
	return cmd
}
