package model

// Enhancement is the synthesized recommendation written back to the
// originating ticketing system.
type Enhancement struct {
	// Text is the recommendation body, bounded by the tenant's word cap.
	Text string `json:"text"`
	// Mode records whether the AI provider or the fallback formatter
	// produced the text.
	Mode SynthesisMode `json:"mode"`
	// Sources names the context nodes whose data contributed.
	Sources []string `json:"sources"`
	// WordCount is the length of Text in words after cap enforcement.
	WordCount int `json:"word_count"`
}
