package model

import "time"

// Attachment is a single decoded MIME part carried by a Message.
// Filename may be a synthesized placeholder for inline parts that
// arrived without one.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is the uniform in-memory representation of one fetched email.
// It is built once by the normalizer and never mutated afterwards.
type Message struct {
	// SourceID uniquely identifies the message within its source:
	// the trimmed Message-ID header when present, otherwise a
	// deterministic fingerprint of the raw header triple.
	SourceID string

	// Subject and Sender are the RFC 2047 decoded display strings.
	Subject string
	Sender  string

	// Date is the parsed Date header; ingestion time if unparseable.
	Date time.Time

	// HTMLBody and TextBody hold at most one body each; the first
	// matching leaf in MIME-tree order wins.
	HTMLBody string
	TextBody string

	// Attachments preserves MIME-tree traversal order.
	Attachments []Attachment
}
