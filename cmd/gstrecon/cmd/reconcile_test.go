package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gst-reconciliation-service/pkg/errors"
)

func TestValidateFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	validFile := filepath.Join(tmpDir, "valid.csv")
	if err := os.WriteFile(validFile, []byte("test"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	tests := []struct {
		name        string
		filePath    string
		expectError bool
	}{
		{name: "valid file", filePath: validFile, expectError: false},
		{name: "empty path", filePath: "", expectError: true},
		{name: "non-existent file", filePath: "/non/existent/file.csv", expectError: true},
		{name: "directory instead of file", filePath: tmpDir, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFileExists(tt.filePath, "test file")

			if tt.expectError && err == nil {
				t.Errorf("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateReconcileFlags(t *testing.T) {
	tmpDir := t.TempDir()
	portalFile := filepath.Join(tmpDir, "gstr2b.csv")
	registerFile := filepath.Join(tmpDir, "purchases.csv")

	header := "GSTIN,Invoice No,Invoice Date,Taxable Value,IGST\n"
	if err := os.WriteFile(portalFile, []byte(header+"27AAACB2894G1ZK,INV-001,01-04-2024,1000,180\n"), 0644); err != nil {
		t.Fatalf("failed to create portal file: %v", err)
	}
	if err := os.WriteFile(registerFile, []byte(header+"27AAACB2894G1ZK,INV-001,01-04-2024,1000,180\n"), 0644); err != nil {
		t.Fatalf("failed to create register file: %v", err)
	}

	tests := []struct {
		name        string
		setup       func()
		expectError bool
	}{
		{
			name: "valid file mode",
			setup: func() {
				leftFile = portalFile
				rightFile = registerFile
			},
			expectError: false,
		},
		{
			name: "missing right file",
			setup: func() {
				leftFile = portalFile
				rightFile = ""
			},
			expectError: true,
		},
		{
			name: "no left file and no credentials",
			setup: func() {
				leftFile = ""
				rightFile = registerFile
				reconGSTIN = ""
				reconUsername = ""
			},
			expectError: true,
		},
		{
			name: "portal mode needs a period",
			setup: func() {
				leftFile = ""
				rightFile = registerFile
				reconGSTIN = "27AAACB2894G1ZK"
				reconUsername = "taxpayer1"
				fiscalYear = 0
			},
			expectError: true,
		},
		{
			name: "portal mode with period",
			setup: func() {
				leftFile = ""
				rightFile = registerFile
				reconGSTIN = "27AAACB2894G1ZK"
				reconUsername = "taxpayer1"
				fiscalYear = 2024
			},
			expectError: false,
		},
		{
			name: "bad output format",
			setup: func() {
				leftFile = portalFile
				rightFile = registerFile
				outputFormat = "xml"
			},
			expectError: true,
		},
		{
			name: "negative tolerance",
			setup: func() {
				leftFile = portalFile
				rightFile = registerFile
				tolerance = -1
			},
			expectError: true,
		},
		{
			name: "unknown return type",
			setup: func() {
				leftFile = portalFile
				rightFile = registerFile
				returnType = "gstr-9"
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetReconcileFlags()
			tt.setup()

			err := validateReconcileFlags(reconcileCmd, nil)

			if tt.expectError && err == nil {
				t.Errorf("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func resetReconcileFlags() {
	leftFile = ""
	rightFile = ""
	reconGSTIN = ""
	reconUsername = ""
	tolerance = 1.0
	fiscalYear = 0
	periodMonth = 0
	periodQuarter = ""
	outputFormat = "console"
	outputFile = ""
	includeMatched = false
	allowGaps = false
	returnType = "gstr-2b"
	returnSection = ""
	fetchWorkers = 8
}

func TestRunReconcileFileMode(t *testing.T) {
	tmpDir := t.TempDir()
	portalFile := filepath.Join(tmpDir, "gstr2b.csv")
	registerFile := filepath.Join(tmpDir, "purchases.csv")
	reportFile := filepath.Join(tmpDir, "report.json")

	portalData := "GSTIN,Invoice No,Invoice Date,Taxable Value,IGST\n" +
		"27AAACB2894G1ZK,INV-001,01-04-2024,1000,180\n" +
		"27AAACB2894G1ZK,INV-002,02-04-2024,2000,360\n"
	registerData := "GSTIN,Invoice No,Invoice Date,Taxable Value,IGST\n" +
		"27AAACB2894G1ZK,INV-001,01-04-2024,1000,180\n"

	if err := os.WriteFile(portalFile, []byte(portalData), 0644); err != nil {
		t.Fatalf("failed to create portal file: %v", err)
	}
	if err := os.WriteFile(registerFile, []byte(registerData), 0644); err != nil {
		t.Fatalf("failed to create register file: %v", err)
	}

	resetReconcileFlags()
	leftFile = portalFile
	rightFile = registerFile
	outputFormat = "json"
	outputFile = reportFile

	if err := runReconcile(reconcileCmd, nil); err != nil {
		t.Fatalf("runReconcile failed: %v", err)
	}

	report, err := os.ReadFile(reportFile)
	if err != nil {
		t.Fatalf("report file not written: %v", err)
	}
	for _, want := range []string{`"matched"`, `"left_only"`, `"INV-002"`} {
		if !strings.Contains(string(report), want) {
			t.Errorf("report missing %s", want)
		}
	}
}

func TestHandleErrorExitCodes(t *testing.T) {
	handler := NewCLIErrorHandler()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil error", err: nil, want: 0},
		{name: "file error", err: errors.FileError(errors.CodeFileNotFound, "x.csv", nil), want: 2},
		{name: "auth error", err: errors.AuthError(errors.CodeSessionExpired, "otp window elapsed", nil), want: 7},
		{name: "generic error", err: os.ErrPermission, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := handler.HandleError(tt.err); got != tt.want {
				t.Errorf("HandleError() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRecoverToError(t *testing.T) {
	run := func() (err error) {
		defer recoverToError("testing", &err)
		panic("boom")
	}

	err := run()
	if err == nil {
		t.Fatal("expected panic to surface as error")
	}
	reconErr, ok := errors.AsReconError(err)
	if !ok {
		t.Fatalf("expected typed error, got %T", err)
	}
	if reconErr.Category != errors.CategoryInternal {
		t.Errorf("Category = %s, want %s", reconErr.Category, errors.CategoryInternal)
	}
}
