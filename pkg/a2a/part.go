package a2a

import "encoding/base64"

/*
Part is a discriminated union over Text, File and Data parts. Exactly one of
Text/File/Data is populated according to Type; Validate enforces this for
parts arriving over the wire.
*/
type Part struct {
	Type PartType `json:"kind"`

	Text       string    `json:"text,omitempty"`
	Embeddings []float32 `json:"embeddings,omitempty"`

	File *FilePart `json:"file,omitempty"`

	DataMimeType string `json:"dataMimeType,omitempty"`
	Data         any    `json:"data,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// PartType is the discriminator for a Part union.
type PartType string

const (
	PartTypeText PartType = "text"
	PartTypeFile PartType = "file"
	PartTypeData PartType = "data"
)

// FilePart carries either inline bytes or a URI reference, never both.
type FilePart struct {
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Bytes    string `json:"bytes,omitempty"` // base64
	URI      string `json:"uri,omitempty"`
}

func NewTextPart(text string) Part {
	return Part{Type: PartTypeText, Text: text}
}

func NewTextPartWithEmbeddings(text string, embeddings []float32) Part {
	return Part{Type: PartTypeText, Text: text, Embeddings: embeddings}
}

func NewFilePartFromBytes(name, mimeType string, data []byte) Part {
	return Part{
		Type: PartTypeFile,
		File: &FilePart{
			Name:     name,
			MimeType: mimeType,
			Bytes:    base64.StdEncoding.EncodeToString(data),
		},
	}
}

func NewFilePartFromURI(name, mimeType, uri string) Part {
	return Part{
		Type: PartTypeFile,
		File: &FilePart{Name: name, MimeType: mimeType, URI: uri},
	}
}

func NewDataPart(mimeType string, value any) Part {
	return Part{Type: PartTypeData, DataMimeType: mimeType, Data: value}
}

/*
Validate reports whether the part honours the "exactly one variant
populated" invariant for its declared Type.
*/
func (p Part) Validate() error {
	switch p.Type {
	case PartTypeText:
		if p.File != nil || p.Data != nil {
			return errInvalidPart("text part must not carry file or data")
		}
	case PartTypeFile:
		if p.File == nil {
			return errInvalidPart("file part missing file payload")
		}
		if p.File.Bytes != "" && p.File.URI != "" {
			return errInvalidPart("file part must not carry both bytes and uri")
		}
	case PartTypeData:
		if p.Data == nil {
			return errInvalidPart("data part missing value")
		}
	default:
		return errInvalidPart("unknown part kind " + string(p.Type))
	}
	return nil
}

func errInvalidPart(msg string) error {
	return &Error{Kind: KindInvalidArgument, Message: msg}
}
