package a2a

import "github.com/google/uuid"

/*
NewID returns a fresh 128-bit identifier in its canonical 36-character
textual form, used for context_id, task_id and message_id alike.
*/
func NewID() string {
	return uuid.New().String()
}

/*
IsValidID reports whether s parses as a UUID. An empty textual id is treated
as the zero-valued id by wire converters (see the gRPC surface), so it is
deliberately not considered valid here.
*/
func IsValidID(s string) bool {
	if s == "" {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
