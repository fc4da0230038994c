package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	yaml "go.yaml.in/yaml/v3"

	"modlog/internal/level"
	"modlog/pkg/logapi"
)

// ErrInvalidValue marks a settings value that cannot be applied.
var ErrInvalidValue = errors.New("invalid settings value")

const (
	KeyShowClassName = "show-class-name"
	KeyShowModName   = "show-mod-name"
	KeyTraceEnabled  = "trace-enabled"
	KeyColor         = "color"
	KeyLogLevels     = "log-levels"
)

// Store reads and writes the settings file backing a policy.
type Store struct {
	path   string
	policy *level.Policy
	log    logapi.Logger

	// mu serializes Load and Save so a reload never interleaves with a write.
	mu       sync.Mutex
	lastHash uint64
}

// NewStore binds the file at path to policy. A nil log discards messages.
func NewStore(path string, policy *level.Policy, log logapi.Logger) *Store {
	if log == nil {
		log = logapi.Nop("settings.Store")
	}
	return &Store{path: path, policy: policy, log: log}
}

func (s *Store) Path() string { return s.path }

// Load applies the file to the policy. A missing file leaves the policy
// untouched. Invalid values are reported and skipped.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Debug("settings file {} does not exist, using defaults", s.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	if err := s.apply(b); err != nil {
		return err
	}
	s.lastHash = hashBytes(b)
	return nil
}

// changed reports whether b differs from the content last loaded or saved.
func (s *Store) changed(b []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := hashBytes(b)
	return h == 0 || h != s.lastHash
}

func (s *Store) apply(raw []byte) error {
	jb, err := toJSON(s.path, raw)
	if err != nil {
		return fmt.Errorf("parse settings %s: %w", s.path, err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(jb, &doc); err != nil {
		return fmt.Errorf("parse settings %s: %w", s.path, err)
	}

	bools := []struct {
		key string
		set func(o *level.Options, v bool)
	}{
		{KeyShowClassName, func(o *level.Options, v bool) { o.ShowName = v }},
		{KeyShowModName, func(o *level.Options, v bool) { o.ShowOwner = v }},
		{KeyTraceEnabled, func(o *level.Options, v bool) { o.Trace = v }},
		{KeyColor, func(o *level.Options, v bool) { o.Color = v }},
	}
	for _, b := range bools {
		raw, ok := doc[b.key]
		if !ok {
			continue
		}
		var v bool
		if err := strictBool(raw, &v); err != nil {
			s.log.Warn("ignoring {} in settings file", b.key, fmt.Errorf("%w: %s is not a boolean", ErrInvalidValue, raw))
			continue
		}
		set := b.set
		s.policy.UpdateOptions(func(o *level.Options) { set(o, v) })
	}

	if raw, ok := doc[KeyLogLevels]; ok {
		s.applyLevels(raw)
	}
	return nil
}

func (s *Store) applyLevels(raw json.RawMessage) {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		s.log.Warn("ignoring {} in settings file", KeyLogLevels, fmt.Errorf("%w: not an object", ErrInvalidValue))
		return
	}

	prior := s.policy.Overrides()
	next := make(map[string]logapi.Level, len(entries))
	for name, v := range entries {
		key := strings.ToLower(name)
		lv, err := parseLevelValue(v)
		if err == nil && level.IsRoot(key) {
			err = level.ErrRootOverride
		}
		if err != nil {
			s.log.Warn("Invalid log level {} for {} in settings file", string(v), name, err)
			if old, ok := prior[key]; ok {
				next[key] = old
			}
			continue
		}
		next[key] = lv
	}
	s.policy.ReplaceOverrides(next)
}

func parseLevelValue(raw json.RawMessage) (logapi.Level, error) {
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return 0, fmt.Errorf("%w: level must be a string", ErrInvalidValue)
	}
	lv, err := logapi.ParseLevel(name)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	return lv, nil
}

type document struct {
	ShowClassName bool              `json:"show-class-name" yaml:"show-class-name"`
	ShowModName   bool              `json:"show-mod-name" yaml:"show-mod-name"`
	TraceEnabled  bool              `json:"trace-enabled" yaml:"trace-enabled"`
	Color         bool              `json:"color" yaml:"color"`
	LogLevels     map[string]string `json:"log-levels" yaml:"log-levels"`
}

func (s *Store) snapshot() document {
	o := s.policy.Options()
	doc := document{
		ShowClassName: o.ShowName,
		ShowModName:   o.ShowOwner,
		TraceEnabled:  o.Trace,
		Color:         o.Color,
		LogLevels:     map[string]string{},
	}
	for name, lv := range s.policy.Overrides() {
		doc.LogLevels[name] = lv.String()
	}
	return doc
}

func (s *Store) encode(doc document) ([]byte, error) {
	if isYAML(s.path) {
		return yaml.Marshal(doc)
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Save writes the policy's current state to the file, replacing it atomically.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.encode(s.snapshot())
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace settings: %w", err)
	}
	s.lastHash = hashBytes(b)
	return nil
}

// ParseBool accepts exactly "true" or "false", case-insensitively.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q is not true or false", ErrInvalidValue, s)
	}
}

// strictBool decodes a JSON boolean. null is not a boolean.
func strictBool(raw json.RawMessage, v *bool) error {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return errors.New("null")
	}
	return json.Unmarshal(raw, v)
}
