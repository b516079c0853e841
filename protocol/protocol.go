// Package protocol defines the exact contract the shell half of a vsbridge
// channel must implement (spec.md §4.6): command names, their parameters,
// and the format tokens that select how payload bytes are decoded. Any
// compliant shell-side implementation that honors these names and
// parameters interoperates with this module's bridge facade — the
// PowerShell script bodies that implement them are out of scope
// (spec.md §1).
package protocol

// Format selects how the shell (or the facade, on the s2h direction)
// decodes or binds transferred bytes (spec.md §6).
type Format string

const (
	FormatBytes    Format = "Bytes"
	FormatString   Format = "String"
	FormatJSON     Format = "Json"
	FormatZeroCopy Format = "ZeroCopy"
)

// Command names are part of the external contract: the host emits them
// verbatim (spec.md §6).
const (
	CmdImport                  = "Import-SharedMemoryData"
	CmdExport                  = "Export-SharedMemoryData"
	CmdExportVarBytes          = "Export-SharedMemoryVarBytes"
	CmdCopyVariableToSharedMem = "Copy-VariableToSharedMemory"
	CmdNewWriteableBuffer      = "New-SharedMemoryWriteableBuffer"
)

// Param names, also part of the external contract.
const (
	ParamChannelName = "ChannelName"
	ParamFrameBytes  = "FrameBytes"
	ParamFormat      = "Format"
	ParamEncoding    = "Encoding"
	ParamVariable    = "VariableName"
	ParamCommand     = "Command"
)

// ShellCommandSpec names one shell-side entry point and the parameters a
// compliant implementation must accept, in the order this package emits
// them (spec.md §4.6).
type ShellCommandSpec struct {
	Name   string
	Params []string
}

// ShellVocabulary enumerates every entry point a compliant shell-side
// implementation must expose, plus the recognized format tokens (spec.md
// §4.6, §6). It is not evaluated at runtime by this module — the
// PowerShell script bodies that implement these entry points are out of
// scope (spec.md §1) — but it is the documentation/contract-testing record
// a shell-side implementation is checked against, and the single source of
// truth the builder functions below are kept in sync with.
type ShellVocabulary struct {
	Commands []ShellCommandSpec
	Formats  []Format
}

// Vocabulary is the shell-side contract this package's builder functions
// emit.
var Vocabulary = ShellVocabulary{
	Commands: []ShellCommandSpec{
		{CmdImport, []string{ParamChannelName, ParamFrameBytes, ParamFormat, ParamEncoding, ParamVariable}},
		{CmdExport, []string{ParamChannelName, ParamFrameBytes, ParamCommand, ParamFormat, ParamEncoding}},
		{CmdExportVarBytes, []string{ParamChannelName, ParamFrameBytes, ParamVariable, ParamEncoding}},
		{CmdCopyVariableToSharedMem, []string{ParamChannelName, ParamFrameBytes, ParamVariable}},
		{CmdNewWriteableBuffer, []string{ParamChannelName, ParamFrameBytes, ParamVariable}},
	},
	Formats: []Format{FormatBytes, FormatString, FormatJSON, FormatZeroCopy},
}

// Command is an ordered (name, value) parameter list for one shell-side
// entry point. Render produces the literal command line text the facade
// sends through the shell driver.
type Command struct {
	Name   string
	Params []Param
}

// Param is one named argument of a Command, in emission order.
type Param struct {
	Name  string
	Value string
}

// Import builds the Import-SharedMemoryData invocation (spec.md §4.6):
// open channel; wait on data_ready_h2s; read region; bind to variable.
func Import(channelName string, frameBytes uint64, format Format, encoding, variable string) Command {
	return Command{Name: CmdImport, Params: []Param{
		{ParamChannelName, channelName},
		{ParamFrameBytes, uitoa(frameBytes)},
		{ParamFormat, string(format)},
		{ParamEncoding, encoding},
		{ParamVariable, variable},
	}}
}

// Export builds the Export-SharedMemoryData invocation: evaluate command,
// encode per format, publish to s2h.
func Export(channelName string, frameBytes uint64, command string, format Format, encoding string) Command {
	return Command{Name: CmdExport, Params: []Param{
		{ParamChannelName, channelName},
		{ParamFrameBytes, uitoa(frameBytes)},
		{ParamCommand, command},
		{ParamFormat, string(format)},
		{ParamEncoding, encoding},
	}}
}

// ExportVarBytes builds the Export-SharedMemoryVarBytes invocation: publish
// an existing variable's raw byte representation to s2h without
// re-evaluating a command.
func ExportVarBytes(channelName string, frameBytes uint64, variable, encoding string) Command {
	return Command{Name: CmdExportVarBytes, Params: []Param{
		{ParamChannelName, channelName},
		{ParamFrameBytes, uitoa(frameBytes)},
		{ParamVariable, variable},
		{ParamEncoding, encoding},
	}}
}

// CopyVariableToSharedMemory builds the Copy-VariableToSharedMemory
// invocation.
func CopyVariableToSharedMemory(channelName string, frameBytes uint64, variable string) Command {
	return Command{Name: CmdCopyVariableToSharedMem, Params: []Param{
		{ParamChannelName, channelName},
		{ParamFrameBytes, uitoa(frameBytes)},
		{ParamVariable, variable},
	}}
}

// NewWriteableBuffer builds the New-SharedMemoryWriteableBuffer invocation:
// bind variable to an object offering Write/WriteBytes/Capacity over the
// s2h region.
func NewWriteableBuffer(channelName string, frameBytes uint64, variable string) Command {
	return Command{Name: CmdNewWriteableBuffer, Params: []Param{
		{ParamChannelName, channelName},
		{ParamFrameBytes, uitoa(frameBytes)},
		{ParamVariable, variable},
	}}
}

// Render produces the literal command-line text sent to the shell driver,
// e.g. `Import-SharedMemoryData -ChannelName x -FrameBytes 4096 ...`; a value
// is wrapped in double quotes only when it is empty or contains a space or a
// double quote.
// Parameter names and order are part of the external contract (spec.md §6);
// the exact quoting style is this module's own — a real PowerShell-speaking
// shell driver is free to re-tokenize it.
func (c Command) Render() string {
	var b []byte
	b = append(b, c.Name...)
	for _, p := range c.Params {
		b = append(b, " -"...)
		b = append(b, p.Name...)
		b = append(b, ' ')
		if needsQuoting(p.Value) {
			b = append(b, '"')
			b = append(b, p.Value...)
			b = append(b, '"')
		} else {
			b = append(b, p.Value...)
		}
	}
	return string(b)
}

func needsQuoting(s string) bool {
	for _, r := range s {
		if r == ' ' || r == '"' {
			return true
		}
	}
	return len(s) == 0
}

func uitoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
