package tasks

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	xe "github.com/roundup-project/roundup/pkg/errors"
)

// Payload is what a scheduled job needs to run one task.
type Payload struct {
	Namespace string
	Task      Task
}

type payloadJSON struct {
	Namespace string          `json:"namespace"`
	Task      json.RawMessage `json:"task"`
}

func (p Payload) MarshalJSON() ([]byte, error) {
	t, err := Marshal(p.Task)
	if err != nil {
		return nil, err
	}
	return json.Marshal(payloadJSON{Namespace: p.Namespace, Task: t})
}

func (p *Payload) UnmarshalJSON(b []byte) error {
	var pj payloadJSON
	if err := json.Unmarshal(b, &pj); err != nil {
		return err
	}
	t, err := Unmarshal(pj.Task)
	if err != nil {
		return err
	}
	p.Namespace = pj.Namespace
	p.Task = t
	return nil
}

// Mailbox passes payloads to scheduled jobs through files in a shared directory.
//
// Each payload is a new file. Loading deletes it.
type Mailbox struct {
	dir string
}

func NewMailbox(dir string) (*Mailbox, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, xe.Wrap(err)
	}
	return &Mailbox{dir: dir}, nil
}

func (m *Mailbox) Dir() string {
	return m.dir
}

// Dump writes the payload into a new file and returns its path.
func (m *Mailbox) Dump(p Payload) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", xe.Wrap(err)
	}

	path := filepath.Join(m.dir, "task-"+uuid.NewString()+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return "", xe.Wrap(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", xe.Wrap(err)
	}
	return path, nil
}

// Discard removes a payload file which will not be loaded, for example when submission fails.
func (m *Mailbox) Discard(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return xe.Wrap(err)
	}
	return nil
}

// LoadPayload reads the payload file and deletes it.
//
// The file is deleted even if it is broken, since it will never be readable.
func LoadPayload(path string) (Payload, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Payload{}, xe.Wrap(err)
	}
	rmErr := os.Remove(path)

	var p Payload
	if err := json.Unmarshal(b, &p); err != nil {
		return Payload{}, xe.WrapWithNote(path, err)
	}
	if rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		return p, xe.Wrap(rmErr)
	}
	return p, nil
}
