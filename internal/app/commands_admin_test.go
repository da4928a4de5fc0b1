package app

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/agis/consultcal/internal/contract"
	"github.com/agis/consultcal/internal/store"
)

func TestVersionCommand(t *testing.T) {
	SetBuildInfo("v9.9.9", "abc", "2026-02-17T00:00:00Z")
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if got := out.String(); !strings.Contains(got, "consultcal v9.9.9 (abc) 2026-02-17T00:00:00Z") {
		t.Fatalf("unexpected version output: %q", got)
	}
}

func TestVersionCommandJSON(t *testing.T) {
	SetBuildInfo("v9.9.9", "abc", "2026-02-17T00:00:00Z")
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"version", "--json"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	env := decodeEnvelope[versionInfo](t, out.String())
	if env.Command != "version" || env.Data.Version != "v9.9.9" || env.Data.Commit != "abc" {
		t.Fatalf("unexpected version payload: %+v", env)
	}
}

func TestCompletionInvalidShellExitCode(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"completion", "tcsh"})
	err := cmd.Execute()
	if err == nil {
		t.Fatalf("expected error")
	}
	if code := ExitCode(err); code != exitUsage {
		t.Fatalf("exit code mismatch: got=%d want=%d", code, exitUsage)
	}
}

func TestCompletionBash(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"completion", "bash"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("completion failed: %v", err)
	}
	if !strings.Contains(out.String(), "consultcal") {
		t.Fatalf("expected completion script to mention consultcal")
	}
}

func TestDoctorReady(t *testing.T) {
	db := testDB(t)
	out, _, err := runCLI(t, db, "doctor", "--json")
	if err != nil {
		t.Fatalf("doctor failed: %v", err)
	}
	env := decodeEnvelope[[]contract.DoctorCheck](t, out)
	if env.Command != "doctor" {
		t.Fatalf("unexpected command: %q", env.Command)
	}
	if ready, _ := env.Meta["ready"].(bool); !ready {
		t.Fatalf("expected ready=true, meta=%v", env.Meta)
	}
	names := map[string]string{}
	for _, c := range env.Data {
		names[c.Name] = c.Status
	}
	for _, want := range []string{"database", "schema", "revision", "timezone", "week_start", "config"} {
		if names[want] != "ok" {
			t.Fatalf("check %s: status=%q, checks=%v", want, names[want], env.Data)
		}
	}
}

func TestDoctorPlain(t *testing.T) {
	db := testDB(t)
	out, _, err := runCLI(t, db, "doctor", "--plain")
	if err != nil {
		t.Fatalf("doctor failed: %v", err)
	}
	if !strings.HasPrefix(out, "ready=true checks=6\n") {
		t.Fatalf("unexpected plain doctor output: %q", out)
	}
	if !strings.Contains(out, "[ok] week_start: monday") {
		t.Fatalf("expected week_start line: %q", out)
	}
}

func TestDoctorInvalidWeekStartNotReady(t *testing.T) {
	db := testDB(t)
	out, _, err := runCLI(t, db, "doctor", "--json", "--week-start", "friday")
	if err == nil {
		t.Fatalf("expected doctor error")
	}
	if code := ExitCode(err); code != exitStore {
		t.Fatalf("exit code mismatch: got=%d want=%d", code, exitStore)
	}
	env := decodeEnvelope[[]contract.DoctorCheck](t, out)
	codes, _ := env.Meta["degraded_reason_codes"].([]any)
	if len(codes) != 1 || codes[0] != "week_start_fail" {
		t.Fatalf("unexpected reason codes: %v", env.Meta["degraded_reason_codes"])
	}
}

func TestDoctorStoreFailure(t *testing.T) {
	testDB(t)
	useStore(t, &stubStore{
		checks: []contract.DoctorCheck{{Name: "database", Status: "fail", Message: "disk I/O error"}},
		err:    errors.New("disk I/O error"),
	})
	out, errOut, err := runCLI(t, "ignored.db", "doctor", "--json")
	if err == nil {
		t.Fatalf("expected doctor error")
	}
	if code := ExitCode(err); code != exitStore {
		t.Fatalf("exit code mismatch: got=%d want=%d", code, exitStore)
	}
	if !strings.Contains(out, "\"ready\": false") {
		t.Fatalf("expected ready=false payload: %q", out)
	}
	if !strings.Contains(errOut, string(contract.ErrStoreUnavailable)) {
		t.Fatalf("expected structured store error: %q", errOut)
	}
}

func TestStoreOpenFailureExitCode(t *testing.T) {
	testDB(t)
	orig := storeFactory
	storeFactory = func(string) (store.Store, error) { return nil, errors.New("unable to open database file") }
	t.Cleanup(func() { storeFactory = orig })

	_, errOut, err := runCLI(t, "ignored.db", "month", "--json")
	if code := ExitCode(err); code != exitStore {
		t.Fatalf("exit code mismatch: got=%d want=%d", code, exitStore)
	}
	if !strings.Contains(errOut, "unable to open database file") {
		t.Fatalf("expected open error on stderr: %q", errOut)
	}
}

func TestDeriveDegradedReasonCodes(t *testing.T) {
	checks := []contract.DoctorCheck{
		{Name: "database", Status: "ok"},
		{Name: "time zone", Status: "warn"},
		{Name: "schema", Status: "FAIL"},
	}
	got := deriveDegradedReasonCodes(checks, errors.New("x"))
	want := "doctor_error,schema_fail,time_zone_warn"
	if strings.Join(got, ",") != want {
		t.Fatalf("got=%v want=%s", got, want)
	}
	if deriveDegradedReasonCodes(checks[:1], nil) != nil {
		t.Fatalf("expected nil for healthy checks")
	}
}
