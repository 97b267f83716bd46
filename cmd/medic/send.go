package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/medic/internal/capture"
	"github.com/steveyegge/medic/internal/control"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Submit failures to a running 'medic watch'",
}

var sendCrashCmd = &cobra.Command{
	Use:   "crash <signal>",
	Short: "Submit a crash payload",
	Example: `  medic send crash SIGSEGV --reason "nil map write" --exit-code 139
  medic send crash SIGABRT --dump-file core.txt`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reason, _ := cmd.Flags().GetString("reason")
		dumpFile, _ := cmd.Flags().GetString("dump-file")

		p := capture.CrashPayload{Signal: args[0], Reason: reason, Timestamp: time.Now()}
		if cmd.Flags().Changed("exit-code") {
			code, _ := cmd.Flags().GetInt("exit-code")
			p.ExitCode = &code
		}
		if dumpFile != "" {
			dump, err := os.ReadFile(dumpFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to read dump: %v\n", err)
				os.Exit(1)
			}
			p.Dump = string(dump)
		}

		resp, err := intakeClient(cmd).Crash(p)
		finishSend(resp, err)
	},
}

var sendReportCmd = &cobra.Command{
	Use:   "report [message]",
	Short: "Submit an error message (read from stdin when omitted)",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		stackFile, _ := cmd.Flags().GetString("stack-file")

		var message string
		if len(args) == 1 {
			message = args[0]
		} else {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to read stdin: %v\n", err)
				os.Exit(1)
			}
			message = strings.TrimSpace(string(data))
		}
		if message == "" {
			fmt.Fprintf(os.Stderr, "Error: message is required\n")
			os.Exit(1)
		}

		var stack string
		if stackFile != "" {
			data, err := os.ReadFile(stackFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to read stack: %v\n", err)
				os.Exit(1)
			}
			stack = string(data)
		}

		resp, err := intakeClient(cmd).Report(message, stack)
		finishSend(resp, err)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the capture hub of a running 'medic watch'",
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")

		resp, err := intakeClient(cmd).Status()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if !resp.Success {
			fmt.Fprintf(os.Stderr, "Error: %s\n", resp.Error)
			os.Exit(1)
		}
		if asJSON {
			printJSON(resp.Data)
			return
		}
		fmt.Printf("%s medic watch is running\n", green("✓"))
		fmt.Printf("  Channels: %v\n", resp.Data["channels"])
		fmt.Printf("  Pending:  %v\n", resp.Data["pending"])
	},
}

func intakeClient(cmd *cobra.Command) *control.Client {
	socket, _ := cmd.Flags().GetString("socket")
	if socket == "" {
		socket = cfg.Capture.Socket
	}
	if socket == "" {
		socket = control.DefaultSocketPath
	}
	return control.NewClient(socket)
}

func finishSend(resp *control.Response, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if !resp.Success {
		fmt.Fprintf(os.Stderr, "Error: %s\n", resp.Error)
		os.Exit(1)
	}
	fmt.Printf("%s %s\n", green("✓"), resp.Message)
}

func init() {
	sendCmd.PersistentFlags().String("socket", "", "Intake socket path (default: capture.socket)")

	sendCrashCmd.Flags().String("reason", "", "Crash reason")
	sendCrashCmd.Flags().Int("exit-code", 0, "Process exit code")
	sendCrashCmd.Flags().String("dump-file", "", "File holding the crash dump")
	sendReportCmd.Flags().String("stack-file", "", "File holding the stack trace")
	sendCmd.AddCommand(sendCrashCmd, sendReportCmd)

	statusCmd.Flags().String("socket", "", "Intake socket path (default: capture.socket)")
	statusCmd.Flags().Bool("json", false, "Print as JSON")

	rootCmd.AddCommand(sendCmd, statusCmd)
}
