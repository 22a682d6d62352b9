package image

import (
	"strings"
)

// DefaultTopicPrefix is the topic prefix used when none is configured.
const DefaultTopicPrefix = "solace/images"

// Property keys carried on every message.
const (
	PropertyFilename    = "filename"
	PropertyContentType = "content-type"
	PropertyEncoding    = "encoding"

	// EncodingBase64 is the only value of the encoding property.
	EncodingBase64 = "base64"
)

// Message is one outbound broker message.
type Message struct {
	// Topic is <prefix>/<filename>.
	Topic string

	// ID is the application message identifier, image-<filename>.
	ID string

	// Properties always holds filename, content-type and encoding.
	Properties map[string]string

	// Body is the base64 payload text.
	Body string
}

// ContentType returns the content-type property.
func (m *Message) ContentType() string {
	return m.Properties[PropertyContentType]
}

// Assemble builds the message for a file name and its encoded payload.
// It never fails: odd filenames still give a syntactically valid topic.
//
// Example:
//
//	msg := image.Assemble("solace/images", "cat.PNG", text)
//	// msg.Topic == "solace/images/cat.PNG"
//	// msg.ContentType() == "image/png"
func Assemble(prefix, filename, body string) *Message {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}

	return &Message{
		Topic: Topic(prefix, filename),
		ID:    "image-" + filename,
		Properties: map[string]string{
			PropertyFilename:    filename,
			PropertyContentType: ContentType(filename),
			PropertyEncoding:    EncodingBase64,
		},
		Body: body,
	}
}

// Topic returns <prefix>/<filename>, tolerating a trailing slash on prefix.
func Topic(prefix, filename string) string {
	return strings.TrimSuffix(prefix, "/") + "/" + filename
}

// ContentType derives image/<ext> from the text after the last dot,
// lowercased. A name without a dot uses the whole name.
func ContentType(filename string) string {
	ext := filename
	if i := strings.LastIndex(filename, "."); i >= 0 {
		ext = filename[i+1:]
	}
	return "image/" + strings.ToLower(ext)
}
