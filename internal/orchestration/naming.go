package orchestration

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/anushabukke/peerBench-sub002/internal/jsonstream"
	"github.com/anushabukke/peerBench-sub002/internal/models"
)

const (
	kindResponses = "responses"
	kindScores    = "scores"
)

// Dots separate filename fields, so they are replaced along with anything
// unsafe in a path segment.
var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_\-]+`)

func sanitizeName(s string) string {
	s = strings.Trim(unsafeNameChars.ReplaceAllString(s, "-"), "-")
	if s == "" {
		return "unknown"
	}
	return s
}

func tagSuffix(tags []string) string {
	var b strings.Builder
	for _, t := range tags {
		if t = sanitizeName(t); t != "unknown" {
			b.WriteString(".")
			b.WriteString(t)
		}
	}
	return b.String()
}

// ResponseFileName names the output of one forwarding unit:
// <task>.<provider>.<owner>.<model>.<timestamp>.responses[.<tags>].json.
func ResponseFileName(task *models.Task, info *models.ModelInfo, ts time.Time, tags []string) string {
	base := filepath.Base(task.FileName)
	taskName := strings.TrimSuffix(base, filepath.Ext(base))
	if task.FileName == "" {
		taskName = task.DID
	}
	return strings.Join([]string{
		sanitizeName(taskName),
		sanitizeName(info.Provider),
		sanitizeName(info.Owner),
		sanitizeName(info.Name),
		strconv.FormatInt(ts.UnixMilli(), 10),
		kindResponses,
	}, ".") + tagSuffix(tags) + ".json"
}

// ScoreFileName names the scores of a response file:
// <responseFile>.<scorer>.<timestamp>.scores[.<tags>].json.
func ScoreFileName(responsePath, scorer string, ts time.Time, tags []string) string {
	base := strings.TrimSuffix(filepath.Base(responsePath), ".json")
	return strings.Join([]string{
		base,
		sanitizeName(scorer),
		strconv.FormatInt(ts.UnixMilli(), 10),
		kindScores,
	}, ".") + tagSuffix(tags) + ".json"
}

// maxNameCollisions bounds how many suffixed names createOutput tries.
const maxNameCollisions = 1000

// createOutput creates name in dir for exclusive writing. When the name is
// already taken, -2, -3 and so on are appended before the extension.
func createOutput(dir, name string) (*jsonstream.Writer, error) {
	base := strings.TrimSuffix(name, ".json")
	for n := 1; n <= maxNameCollisions; n++ {
		candidate := name
		if n > 1 {
			candidate = fmt.Sprintf("%s-%d.json", base, n)
		}
		w, err := jsonstream.CreateExclusive(filepath.Join(dir, candidate))
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		return w, err
	}
	return nil, fmt.Errorf("creating %s: too many files with the same name", filepath.Join(dir, name))
}
