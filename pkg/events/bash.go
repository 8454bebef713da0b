package events

// BashCommand and BashOutput back the standalone bash execution log
// internal/bashapi exposes at spec.md §6.3 — a collaborator interface
// independent of any agent conversation. CommandID groups one execution's
// command and its terminal output; ID (via Base) is the event's own
// identity in the bash event log.
type BashCommand struct {
	Base
	CommandID      ID     `json:"command_id"`
	Command        string `json:"command"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	Cwd            string `json:"cwd,omitempty"`
}

func (BashCommand) EventKind() Kind      { return KindBashCommand }
func (BashCommand) LLMConvertible() bool { return false }

func (e BashCommand) MarshalJSON() ([]byte, error) {
	type alias BashCommand
	return marshalWithKind(KindBashCommand, alias(e))
}

// BashOutput is the terminal result of one bash command's execution.
// internal/bashapi publishes it once the command has finished, since RunBash
// captures output synchronously rather than streaming partial chunks.
// ExitCode is set whenever the command ran; it is nil when RunBash rejected
// the command's cwd before running it.
type BashOutput struct {
	Base
	CommandID       ID     `json:"command_id"`
	Output          string `json:"output"`
	ExitCode        *int   `json:"exit_code,omitempty"`
	TimeoutOccurred bool   `json:"timeout_occurred,omitempty"`
}

func (BashOutput) EventKind() Kind      { return KindBashOutput }
func (BashOutput) LLMConvertible() bool { return false }

func (e BashOutput) MarshalJSON() ([]byte, error) {
	type alias BashOutput
	return marshalWithKind(KindBashOutput, alias(e))
}
