package transcribe

import "fmt"

// EngineError reports a failed transcription. No partial output accompanies it.
type EngineError struct {
	Engine string
	Err    error
}

func (e *EngineError) Error() string {
	if e.Engine == "" {
		return fmt.Sprintf("transcription failed: %v", e.Err)
	}
	return fmt.Sprintf("transcription failed (%s): %v", e.Engine, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }
