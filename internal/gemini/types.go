// Package gemini provides an HTTP client for the Gemini REST API covering
// the calls the segment analyzer needs: resumable file upload, file state
// polling, file deletion and JSON content generation against an uploaded file.
package gemini

// FileState represents the processing state of an uploaded file.
type FileState string

// File states reported by the Files API.
const (
	FileStateUnspecified FileState = "STATE_UNSPECIFIED"
	FileStateProcessing  FileState = "PROCESSING"
	FileStateActive      FileState = "ACTIVE"
	FileStateFailed      FileState = "FAILED"
)

// File is an uploaded media file.
type File struct {
	// Name is the resource name, e.g. "files/abc123".
	Name        string    `json:"name"`
	DisplayName string    `json:"displayName,omitempty"`
	MIMEType    string    `json:"mimeType,omitempty"`
	SizeBytes   string    `json:"sizeBytes,omitempty"`
	URI         string    `json:"uri,omitempty"`
	State       FileState `json:"state,omitempty"`
	Error       *Status   `json:"error,omitempty"`
}

// Status is the error detail attached to a failed file.
type Status struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// uploadStartRequest is the metadata body of a resumable upload start.
type uploadStartRequest struct {
	File uploadFileMetadata `json:"file"`
}

type uploadFileMetadata struct {
	DisplayName string `json:"display_name,omitempty"`
}

// uploadResponse wraps the file returned when an upload is finalized.
type uploadResponse struct {
	File File `json:"file"`
}

// generateRequest is the request body for models.generateContent.
type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text     string    `json:"text,omitempty"`
	FileData *fileData `json:"fileData,omitempty"`
}

type fileData struct {
	MIMEType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri"`
}

type generationConfig struct {
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
	Temperature      float64 `json:"temperature,omitempty"`
}

// generateResponse is the response body of models.generateContent.
type generateResponse struct {
	Candidates     []candidate     `json:"candidates"`
	PromptFeedback *promptFeedback `json:"promptFeedback,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}
