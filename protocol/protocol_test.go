package protocol

import (
	"strings"
	"testing"
)

// renderedParamNames returns the parameter names of cmd in emission order
// (the order Render writes them), read from cmd.Params, so tests can check
// builder output against Vocabulary without re-parsing full command text.
func renderedParamNames(t *testing.T, cmd Command) []string {
	t.Helper()
	var names []string
	for _, p := range cmd.Params {
		names = append(names, p.Name)
	}
	return names
}

func specFor(t *testing.T, name string) ShellCommandSpec {
	t.Helper()
	for _, c := range Vocabulary.Commands {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("no ShellCommandSpec for %q in Vocabulary", name)
	return ShellCommandSpec{}
}

func TestImportMatchesVocabulary(t *testing.T) {
	cmd := Import("vsbridge_x", 4096, FormatBytes, "utf-8", "$v")
	if got, want := cmd.Name, CmdImport; got != want {
		t.Fatalf("Name = %q, want %q", got, want)
	}
	spec := specFor(t, CmdImport)
	if got, want := renderedParamNames(t, cmd), spec.Params; !equalStrings(got, want) {
		t.Fatalf("params = %v, want %v (per Vocabulary)", got, want)
	}
}

func TestExportMatchesVocabulary(t *testing.T) {
	cmd := Export("vsbridge_x", 4096, "Get-Date", FormatString, "utf-8")
	spec := specFor(t, CmdExport)
	if got, want := renderedParamNames(t, cmd), spec.Params; !equalStrings(got, want) {
		t.Fatalf("params = %v, want %v (per Vocabulary)", got, want)
	}
}

func TestExportVarBytesIncludesEncoding(t *testing.T) {
	cmd := ExportVarBytes("vsbridge_x", 4096, "$__vsbridge_result", "utf-8")
	spec := specFor(t, CmdExportVarBytes)
	if got, want := renderedParamNames(t, cmd), spec.Params; !equalStrings(got, want) {
		t.Fatalf("params = %v, want %v (per Vocabulary)", got, want)
	}
	rendered := cmd.Render()
	if !strings.Contains(rendered, "-Encoding utf-8") {
		t.Fatalf("rendered command missing -Encoding: %q", rendered)
	}
	if !strings.Contains(rendered, "-VariableName") {
		t.Fatalf("rendered command missing -VariableName: %q", rendered)
	}
}

func TestCopyVariableToSharedMemoryMatchesVocabulary(t *testing.T) {
	cmd := CopyVariableToSharedMemory("vsbridge_x", 4096, "$src")
	spec := specFor(t, CmdCopyVariableToSharedMem)
	if got, want := renderedParamNames(t, cmd), spec.Params; !equalStrings(got, want) {
		t.Fatalf("params = %v, want %v (per Vocabulary)", got, want)
	}
}

func TestNewWriteableBufferMatchesVocabulary(t *testing.T) {
	cmd := NewWriteableBuffer("vsbridge_x", 4096, "$buf")
	spec := specFor(t, CmdNewWriteableBuffer)
	if got, want := renderedParamNames(t, cmd), spec.Params; !equalStrings(got, want) {
		t.Fatalf("params = %v, want %v (per Vocabulary)", got, want)
	}
}

func TestVariableParamNameMatchesGroundTruth(t *testing.T) {
	// spec.md §6: parameter names are part of the external contract; the
	// ground truth (original_source/src/virtualshell/shared_memory_bridge.py)
	// binds variables with the literal PowerShell parameter -VariableName,
	// never -Variable.
	if ParamVariable != "VariableName" {
		t.Fatalf("ParamVariable = %q, want %q", ParamVariable, "VariableName")
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
