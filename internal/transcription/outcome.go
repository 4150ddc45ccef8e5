package transcription

// Reason says why no transcript is available.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonNoReference     Reason = "no_reference"
	ReasonFetchFailed     Reason = "fetch_failed"
	ReasonReadFailed      Reason = "read_failed"
	ReasonModelFailed     Reason = "model_failed"
	ReasonEmptyTranscript Reason = "empty_transcript"
)

// Outcome is either a non-empty transcript or Unavailable with a reason.
// Transcription never fails the request; callers branch on Text.
type Outcome struct {
	text   string
	reason Reason
}

func Transcript(text string) Outcome {
	return Outcome{text: text}
}

func Unavailable(reason Reason) Outcome {
	return Outcome{reason: reason}
}

func (o Outcome) Text() (string, bool) {
	return o.text, o.reason == ReasonNone && o.text != ""
}

func (o Outcome) Reason() Reason {
	if o.reason == ReasonNone && o.text == "" {
		return ReasonEmptyTranscript
	}
	return o.reason
}

func (o Outcome) Available() bool {
	_, ok := o.Text()
	return ok
}
