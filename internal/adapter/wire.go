package adapter

// SourceFile is one file handed to the analyzer. Text is the open editor
// buffer when the file is open, the disk content otherwise.
type SourceFile struct {
	Path    string `json:"path"`
	Text    string `json:"text"`
	Version int32  `json:"version"`
}

// Project describes one whole-project analysis request.
type Project struct {
	Root  string       `json:"root"`
	Files []SourceFile `json:"files"`
}

// WireSpan is a half-open byte range in the analyzer's output.
type WireSpan struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Result is the analyzer's output for one project. Keys are analyzer-local
// identifiers that are unique across the whole result.
type Result struct {
	Files    []FileResult    `json:"files"`
	Findings []FindingResult `json:"findings,omitempty"`
}

// FileResult carries everything the analyzer found in one file.
type FileResult struct {
	Path string `json:"path"`
	// Version, when present, is the document version the analyzer saw.
	Version      *int32              `json:"version,omitempty"`
	Declarations []Declaration       `json:"declarations,omitempty"`
	References   []ReferenceResult   `json:"references,omitempty"`
	Calls        []CallResult        `json:"calls,omitempty"`
	Inheritance  []InheritanceResult `json:"inheritance,omitempty"`
}

type Declaration struct {
	Key           string   `json:"key"`
	Kind          string   `json:"kind"`
	Name          string   `json:"name"`
	QualifiedName string   `json:"qualified_name"`
	Signature     string   `json:"signature,omitempty"`
	NameSpan      WireSpan `json:"name_span"`
	DeclSpan      WireSpan `json:"decl_span"`
	Parent        string   `json:"parent,omitempty"`
	Visibility    string   `json:"visibility,omitempty"`
	Mutability    string   `json:"mutability,omitempty"`
	Implemented   bool     `json:"implemented,omitempty"`
	Abstract      bool     `json:"abstract,omitempty"`
}

type ReferenceResult struct {
	Target string   `json:"target"`
	Span   WireSpan `json:"span"`
	Kind   string   `json:"kind"`
}

// CallResult is one call expression. An empty Callee marks a call the
// analyzer could not resolve.
type CallResult struct {
	Caller string   `json:"caller"`
	Callee string   `json:"callee,omitempty"`
	Span   WireSpan `json:"span"`
}

type InheritanceResult struct {
	Contract string   `json:"contract"`
	Bases    []string `json:"bases"`
}

// FindingResult mirrors a detector result: check id, impact, confidence,
// description and the source elements it points at.
type FindingResult struct {
	Check       string           `json:"check"`
	Impact      string           `json:"impact"`
	Confidence  string           `json:"confidence"`
	Description string           `json:"description"`
	Elements    []FindingElement `json:"elements,omitempty"`
}

type FindingElement struct {
	Path   string   `json:"path"`
	Span   WireSpan `json:"span"`
	Symbol string   `json:"symbol,omitempty"`
}

// failureOutput is what the analyzer prints on stdout when it exits non-zero
// with structured diagnostics.
type failureOutput struct {
	Diagnostics []Diagnostic `json:"diagnostics"`
}
