package app

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/agis/consultcal/internal/contract"
	"github.com/agis/consultcal/internal/output"
)

func newVersionCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := currentVersion()
			if !opts.JSON && !opts.JSONL {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "consultcal %s\n", info)
				return err
			}
			p := output.Printer{Mode: output.ModeJSON, Command: "version", SchemaVersion: opts.SchemaVersion, Out: cmd.OutOrStdout(), Err: cmd.ErrOrStderr()}
			if opts.JSONL {
				p.Mode = output.ModeJSONL
			}
			return p.Success(info, nil, nil)
		},
	}
}

func newDoctorCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run preflight checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, st, ro, err := buildContext(cmd, opts, "doctor")
			if err != nil {
				return err
			}
			defer st.Close()
			ctx, cancel := commandContext(ro)
			defer cancel()
			checks, derr := doctorWithTimeout(ctx, st)
			checks = append(checks, environmentChecks(ro)...)
			reasonCodes := deriveDegradedReasonCodes(checks, derr)
			ready := derr == nil && !hasFailure(checks)
			if p.EffectiveSuccessMode() == output.ModePlain {
				_ = printDoctorPlain(cmd.OutOrStdout(), checks, ready, reasonCodes)
			} else {
				_ = successWithMeta(ctx, p, ro, checks, map[string]any{
					"count":                 len(checks),
					"ready":                 ready,
					"degraded_reason_codes": reasonCodes,
				}, nil)
			}
			if derr != nil {
				_ = p.Error(contract.ErrStoreUnavailable, derr.Error(), "Check --db points at a writable location")
				return WrapPrinted(exitStore, derr)
			}
			if !ready {
				return Wrap(exitStore, fmt.Errorf("doctor checks not ready"))
			}
			return nil
		},
	}
}

// environmentChecks report settings that do not need the store.
func environmentChecks(ro *globalOptions) []contract.DoctorCheck {
	tz := contract.DoctorCheck{Name: "timezone", Status: "ok", Message: time.Local.String()}
	if strings.TrimSpace(ro.TZ) != "" {
		if _, err := time.LoadLocation(ro.TZ); err != nil {
			tz.Status = "warn"
			tz.Message = fmt.Sprintf("unknown zone %q, falling back to %s", ro.TZ, time.Local)
		} else {
			tz.Message = ro.TZ
		}
	}
	ws := contract.DoctorCheck{Name: "week_start", Status: "ok", Message: ro.WeekStart}
	if _, err := parseWeekStart(ro.WeekStart); err != nil {
		ws.Status = "fail"
		ws.Message = err.Error()
	}
	cfg := contract.DoctorCheck{Name: "config", Status: "ok", Message: firstNonEmpty(ro.Config, "none")}
	return []contract.DoctorCheck{tz, ws, cfg}
}

func hasFailure(checks []contract.DoctorCheck) bool {
	for _, c := range checks {
		if strings.EqualFold(c.Status, "fail") {
			return true
		}
	}
	return false
}

func newCompletionCmd(root *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "completion <bash|zsh|fish|powershell>",
		Short: "Generate shell completion scripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			shell := strings.ToLower(args[0])
			switch shell {
			case "bash":
				return root.GenBashCompletion(cmd.OutOrStdout())
			case "zsh":
				return root.GenZshCompletion(cmd.OutOrStdout())
			case "fish":
				return root.GenFishCompletion(cmd.OutOrStdout(), true)
			case "powershell":
				return root.GenPowerShellCompletion(cmd.OutOrStdout())
			default:
				return Wrap(exitUsage, fmt.Errorf("unsupported shell: %s", shell))
			}
		},
	}
}

func deriveDegradedReasonCodes(checks []contract.DoctorCheck, derr error) []string {
	codeSet := map[string]struct{}{}
	for _, c := range checks {
		status := strings.ToLower(strings.TrimSpace(c.Status))
		if status == "" || status == "ok" || status == "pass" {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(c.Name))
		name = strings.NewReplacer(" ", "_", "-", "_").Replace(name)
		if name == "" {
			name = "unknown_check"
		}
		codeSet[name+"_"+status] = struct{}{}
	}
	if derr != nil {
		codeSet["doctor_error"] = struct{}{}
	}
	if len(codeSet) == 0 {
		return nil
	}
	out := make([]string, 0, len(codeSet))
	for code := range codeSet {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

func printDoctorPlain(out io.Writer, checks []contract.DoctorCheck, ready bool, reasonCodes []string) error {
	if _, err := fmt.Fprintf(out, "ready=%t checks=%d\n", ready, len(checks)); err != nil {
		return err
	}
	if len(reasonCodes) > 0 {
		_, _ = fmt.Fprintf(out, "reasons=%s\n", strings.Join(reasonCodes, ","))
	}
	for _, c := range checks {
		_, _ = fmt.Fprintf(out, "[%s] %s: %s\n", c.Status, c.Name, c.Message)
	}
	return nil
}
