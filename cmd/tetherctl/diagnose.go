package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CaioWing/Tether/internal/app"
	"github.com/CaioWing/Tether/internal/diagnostics"
	"github.com/CaioWing/Tether/internal/domain"
	"github.com/CaioWing/Tether/internal/transport"
)

var errNotPassed = errors.New("diagnostics did not pass")

func diagnoseCmd() *cobra.Command {
	var (
		connType   string
		address    string
		deviceArg  string
		attest     []string
		noQuestion bool
	)
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Walk through the connection checklist for a device",
		Long: `diagnose evaluates the troubleshooting checklist for a connection type.
Automatic checks run against this host. Attested checks are asked on stdin
unless --no-input is set, in which case only --attest answers are used.`,
		Example: `  tetherctl diagnose --type network --address 192.168.1.40
  tetherctl diagnose --device 6f1c... --no-input --attest cable-seated=yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if deviceArg != "" {
				id, err := parseID(deviceArg)
				if err != nil {
					return err
				}
				err = withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
					d, err := a.Devices.GetByID(ctx, id)
					if err != nil {
						return err
					}
					connType, address = string(d.ConnectionType), d.Address()
					return nil
				})
				if err != nil {
					return err
				}
			}

			engine, err := diagnostics.NewEngine(transport.RuntimeProbe{})
			if err != nil {
				return err
			}
			w, err := diagnostics.NewWalkthrough(engine, domain.ConnectionType(connType), address)
			if err != nil {
				return err
			}
			for _, a := range attest {
				id, answer, ok := strings.Cut(a, "=")
				if !ok {
					return fmt.Errorf("%w: --attest wants CHECK=yes|no, got %q", domain.ErrInvalidInput, a)
				}
				resolved, ok := parseAnswer(answer)
				if !ok {
					return fmt.Errorf("%w: --attest %s: answer must be yes or no", domain.ErrInvalidInput, id)
				}
				if err := w.Attest(id, resolved); err != nil {
					return err
				}
			}

			var in io.Reader
			if !noQuestion {
				in = cmd.InOrStdin()
			}
			results, err := runWalkthrough(w, in, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := printCheckResults(stdout(cmd), results); err != nil {
				return err
			}
			if !diagnostics.Passed(results) {
				return errNotPassed
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&connType, "type", "t", string(domain.ConnectionNetwork), "connection type: network or usb")
	cmd.Flags().StringVarP(&address, "address", "a", "", "device IP address or serial port")
	cmd.Flags().StringVar(&deviceArg, "device", "", "take type and address from a registered device")
	cmd.Flags().StringArrayVar(&attest, "attest", nil, "pre-answer an attested check, CHECK=yes|no (repeatable)")
	cmd.Flags().BoolVar(&noQuestion, "no-input", false, "do not prompt; unanswered attested checks stay unknown")
	return cmd
}

// runWalkthrough asks each unanswered attested check on out and reads a yes
// or no from in. A nil in, or end of input, leaves the remaining checks
// unanswered.
func runWalkthrough(w *diagnostics.Walkthrough, in io.Reader, out io.Writer) ([]diagnostics.CheckResult, error) {
	if in == nil {
		return w.Results()
	}
	sc := bufio.NewScanner(in)
	for {
		c, ok := w.Next()
		if !ok {
			break
		}
		prompt := c.Prompt
		if prompt == "" {
			prompt = c.Title + "?"
		}
		fmt.Fprintf(out, "%s [y/n] ", prompt)
		if !sc.Scan() {
			fmt.Fprintln(out)
			break
		}
		resolved, ok := parseAnswer(sc.Text())
		if !ok {
			fmt.Fprintln(out, "please answer y or n")
			continue
		}
		if err := w.Attest(c.ID, resolved); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read answers: %w", err)
	}
	return w.Results()
}

func parseAnswer(s string) (resolved, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes", "true":
		return true, true
	case "n", "no", "false":
		return false, true
	}
	return false, false
}
