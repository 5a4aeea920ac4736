package events

// DefaultSubjectPrefix is the root of every subject published by bayestune.
const DefaultSubjectPrefix = "bayestune"

// Event kinds, used as the last subject token.
const (
	KindSuggested = "suggested"
	KindDone      = "done"
	KindReset     = "reset"
)

func SubjectSuggested(prefix, sessionID string) string {
	return subject(prefix, sessionID, KindSuggested)
}

func SubjectDone(prefix, sessionID string) string {
	return subject(prefix, sessionID, KindDone)
}

func SubjectReset(prefix, sessionID string) string {
	return subject(prefix, sessionID, KindReset)
}

// SubjectAll matches every event of every session under prefix.
func SubjectAll(prefix string) string {
	return orDefault(prefix) + ".session.>"
}

func subject(prefix, sessionID, kind string) string {
	return orDefault(prefix) + ".session." + sessionID + "." + kind
}

func orDefault(prefix string) string {
	if prefix == "" {
		return DefaultSubjectPrefix
	}
	return prefix
}
