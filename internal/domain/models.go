package domain

// Upload is one raster image received in a /process request. It lives only
// for the duration of that request.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Settings are the per-request pipeline options. Values not supplied by the
// caller are filled from configuration defaults before the pipeline runs.
type Settings struct {
	Threshold     int  `json:"threshold"`
	IncludeEPS    bool `json:"include_eps"`
	GroupByPrefix bool `json:"group_by_prefix"`
}

// Stage identifies where in the pipeline a file was last processed. For a
// failed file it is the stage that failed.
type Stage string

const (
	StageValidating    Stage = "validating"
	StagePreprocessing Stage = "preprocessing"
	StageTracing       Stage = "tracing"
	StageRecoloring    Stage = "recoloring"
	StageComplete      Stage = "complete"
)

// FileResult is the outcome of one uploaded file.
type FileResult struct {
	Filename string `json:"filename"`
	Stem     string `json:"stem"`
	Prefix   string `json:"prefix"`
	OK       bool   `json:"ok"`
	Stage    Stage  `json:"stage"`
	Error    string `json:"error,omitempty"`

	// Workspace paths, never serialized.
	BitmapPath string `json:"-"`
	SVGPath    string `json:"-"`
	EPSPath    string `json:"-"`
}

// GroupResult is the outcome of one prefix group.
type GroupResult struct {
	Prefix  string   `json:"prefix"`
	Members []string `json:"members"`
	OK      bool     `json:"ok"`
	Skipped bool     `json:"skipped,omitempty"`
	Error   string   `json:"error,omitempty"`

	EPSPath string `json:"-"`
}

// BatchResult pairs every uploaded file with either its artifacts or its
// failure, plus the per-prefix group outcomes.
type BatchResult struct {
	Settings Settings      `json:"settings"`
	Files    []FileResult  `json:"files"`
	Groups   []GroupResult `json:"groups"`
}

// Succeeded returns the results of files that produced artifacts.
func (b *BatchResult) Succeeded() []FileResult {
	out := make([]FileResult, 0, len(b.Files))
	for _, f := range b.Files {
		if f.OK {
			out = append(out, f)
		}
	}
	return out
}

// AllFailed reports whether no file in the batch produced artifacts.
func (b *BatchResult) AllFailed() bool {
	if len(b.Files) == 0 {
		return true
	}
	for _, f := range b.Files {
		if f.OK {
			return false
		}
	}
	return true
}
