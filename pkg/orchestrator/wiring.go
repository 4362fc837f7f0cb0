package orchestrator

import "github.com/sipeed/cortexd/pkg/substrate"

// ConversationSubstrate adapts the shared substrate Reader/Appender pair
// into the narrow conversation.Appender/ContentReader/ContentWriter
// capabilities, so pkg/conversation never needs to import pkg/substrate
// directly. CONVERSATION is append-only to every other caller; the
// ContentWriter side uses Appender.Overwrite, which is scoped to exactly
// this maintenance use (compaction and archiving rewrite history instead of
// adding one line).
type ConversationSubstrate struct {
	Reader   *substrate.Reader
	Appender *substrate.Appender
}

// Append satisfies conversation.Appender.
func (c ConversationSubstrate) Append(role, entry string) error {
	return c.Appender.Append(substrate.CONVERSATION, role, entry)
}

// Read satisfies conversation.ContentReader.
func (c ConversationSubstrate) Read() (string, error) {
	res, err := c.Reader.Read(substrate.CONVERSATION)
	if err != nil {
		return "", err
	}
	return res.Raw, nil
}

// Write satisfies conversation.ContentWriter.
func (c ConversationSubstrate) Write(content string) error {
	return c.Appender.Overwrite(substrate.CONVERSATION, content)
}
