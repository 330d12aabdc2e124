package merge

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/matheus3301/gitchat/internal/store"
)

// ownRecord is the file shape this node writes.
type ownRecord struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// foreignRecord covers message files written by other tools that ended up
// in a peer's tree.
type foreignRecord struct {
	Message string `json:"message"`
	Time    string `json:"time"`
	Date    string `json:"date"`
}

// parseFile turns one message file into a Message. Returns nil (and no
// error) for files that are not messages; a non-nil error marks a
// malformed file the caller should warn about and skip.
func parseFile(path, originRepo string) (*store.Message, error) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	switch filepath.Ext(path) {
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		var own ownRecord
		if err := json.Unmarshal(data, &own); err == nil && own.Content != "" && own.Timestamp != "" {
			id := own.ID
			if id == "" {
				id = stem
			}
			return &store.Message{
				ID:         id,
				Content:    own.Content,
				Timestamp:  own.Timestamp,
				OriginRepo: originRepo,
			}, nil
		}

		var foreign foreignRecord
		if err := json.Unmarshal(data, &foreign); err != nil {
			return nil, err
		}
		if foreign.Message == "" {
			return nil, errUnrecognized
		}
		ts := foreign.Time
		if ts == "" {
			ts = foreign.Date
		}
		if ts == "" {
			ts = fileModTime(path)
		}
		return &store.Message{
			ID:         stem,
			Content:    foreign.Message,
			Timestamp:  ts,
			OriginRepo: originRepo,
		}, nil

	case ".txt":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		content := strings.TrimSpace(string(data))
		if content == "" {
			return nil, nil
		}
		return &store.Message{
			ID:         stem,
			Content:    content,
			Timestamp:  fileModTime(path),
			OriginRepo: originRepo,
		}, nil

	default:
		return nil, nil
	}
}

type unrecognizedError struct{}

func (unrecognizedError) Error() string { return "unrecognized message file shape" }

var errUnrecognized = unrecognizedError{}

func fileModTime(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	return info.ModTime().UTC().Format(time.RFC3339)
}
