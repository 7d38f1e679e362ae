package processor

import (
	"strings"
	"time"

	"gitlab.com/tozd/go/errors"

	"filigram/internal/rules"
	"filigram/internal/watermark"
)

var (
	ErrNotADirectory = errors.Base("input is not a directory")
	ErrFilesystem    = errors.Base("filesystem error")
	ErrCopy          = errors.Base("cannot copy file")
)

// CopyErrorPolicy decides what a failed plain copy does to the rest of the run.
type CopyErrorPolicy int

const (
	// CopyErrorSkip logs the failure and keeps going.
	CopyErrorSkip CopyErrorPolicy = iota
	// CopyErrorAbort stops handing out work and fails the run with ErrCopy.
	CopyErrorAbort
)

func (p CopyErrorPolicy) String() string {
	switch p {
	case CopyErrorAbort:
		return "abort"
	default:
		return "skip"
	}
}

func ParseCopyErrorPolicy(s string) (CopyErrorPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return CopyErrorSkip, nil
	case "abort":
		return CopyErrorAbort, nil
	default:
		return CopyErrorSkip, errors.Errorf("unknown copy error policy %q (want skip or abort)", s)
	}
}

// ProgressSink receives entry counts. It never formats anything itself.
type ProgressSink interface {
	SetTotal(n uint64)
	SetPosition(n uint64)
}

type Options struct {
	Watermark   watermark.Config
	Rules       rules.Rules
	Workers     int
	OnCopyError CopyErrorPolicy
}

// Entry is one walked filesystem node.
type Entry struct {
	Path    string
	RelPath string
	IsDir   bool
}

type Action int

const (
	ActionCopy Action = iota
	ActionWatermark
)

type Result struct {
	Entry       Entry
	Action      Action
	Err         error
	MetadataErr error
	Fatal       bool
}

// Summary counts what a run did. Entries includes the input root itself.
type Summary struct {
	Entries        int
	Directories    int
	Watermarked    int
	Copied         int
	Failed         int
	MetadataErrors int
	Elapsed        time.Duration
}
