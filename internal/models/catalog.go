// Package models lists the MonsterAPI models this tool knows about and
// validates request parameters against their JSON Schemas.
package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Kind is the modality of a model's output.
type Kind string

const (
	KindText   Kind = "text"
	KindImage  Kind = "image"
	KindAudio  Kind = "audio"
	KindSpeech Kind = "speech"
)

// Model describes a known model and the parameters it accepts.
type Model struct {
	Name        string          `json:"name" yaml:"name"`
	Kind        Kind            `json:"kind" yaml:"kind"`
	Description string          `json:"description" yaml:"description"`
	Schema      json.RawMessage `json:"-" yaml:"-"`
}

const textSchema = `{
  "type": "object",
  "required": ["prompt"],
  "properties": {
    "prompt": {"type": "string", "minLength": 1},
    "top_k": {"type": "integer", "minimum": 1},
    "top_p": {"type": "number", "minimum": 0, "maximum": 1},
    "temp": {"type": "number", "minimum": 0, "maximum": 2},
    "max_length": {"type": "integer", "minimum": 1, "maximum": 4096},
    "repetition_penalty": {"type": "number", "minimum": 0},
    "beam_size": {"type": "integer", "minimum": 1}
  }
}`

const imageSchema = `{
  "type": "object",
  "required": ["prompt"],
  "properties": {
    "prompt": {"type": "string", "minLength": 1},
    "negprompt": {"type": "string"},
    "samples": {"type": "integer", "minimum": 1, "maximum": 4},
    "steps": {"type": "integer", "minimum": 1, "maximum": 500},
    "aspect_ratio": {"enum": ["square", "landscape", "portrait"]},
    "guidance_scale": {"type": "number", "minimum": 1, "maximum": 20},
    "seed": {"type": "integer"},
    "style": {"type": "string"}
  }
}`

const whisperSchema = `{
  "type": "object",
  "required": ["file"],
  "properties": {
    "file": {"type": "string", "minLength": 1},
    "language": {"type": "string"},
    "transcription_format": {"enum": ["text", "srt", "word", "verbose"]},
    "prompt": {"type": "string"},
    "remove_silence": {"type": "boolean"},
    "diarize": {"type": "boolean"},
    "num_speakers": {"type": "integer", "minimum": 1}
  }
}`

const barkSchema = `{
  "type": "object",
  "required": ["prompt"],
  "properties": {
    "prompt": {"type": "string", "minLength": 1},
    "speaker": {"type": "string"},
    "sample_rate": {"type": "integer", "minimum": 8000},
    "text_temp": {"type": "number", "minimum": 0, "maximum": 1},
    "waveform_temp": {"type": "number", "minimum": 0, "maximum": 1}
  }
}`

var catalog = []Model{
	{Name: "falcon-7b-instruct", Kind: KindText, Description: "Falcon 7B instruction-tuned text generation", Schema: json.RawMessage(textSchema)},
	{Name: "falcon-40b-instruct", Kind: KindText, Description: "Falcon 40B instruction-tuned text generation", Schema: json.RawMessage(textSchema)},
	{Name: "llama2-7b-chat", Kind: KindText, Description: "Llama 2 7B chat completion", Schema: json.RawMessage(textSchema)},
	{Name: "mpt-7b-instruct", Kind: KindText, Description: "MPT 7B instruction-tuned text generation", Schema: json.RawMessage(textSchema)},
	{Name: "sdxl-base", Kind: KindImage, Description: "Stable Diffusion XL text to image", Schema: json.RawMessage(imageSchema)},
	{Name: "txt2img", Kind: KindImage, Description: "Stable Diffusion text to image", Schema: json.RawMessage(imageSchema)},
	{Name: "whisper", Kind: KindSpeech, Description: "Whisper speech to text", Schema: json.RawMessage(whisperSchema)},
	{Name: "sunoai-bark", Kind: KindAudio, Description: "Bark text to speech", Schema: json.RawMessage(barkSchema)},
}

var (
	compiled   map[string]*gojsonschema.Schema
	compileMu  sync.Mutex
	byName     = make(map[string]Model, len(catalog))
	sortedList []Model
)

func init() {
	for _, m := range catalog {
		byName[m.Name] = m
	}
	sortedList = append([]Model(nil), catalog...)
	sort.Slice(sortedList, func(i, j int) bool { return sortedList[i].Name < sortedList[j].Name })
}

// All returns the known models sorted by name.
func All() []Model {
	return append([]Model(nil), sortedList...)
}

// Lookup returns the model with the given name.
func Lookup(name string) (Model, bool) {
	m, ok := byName[name]
	return m, ok
}

func schemaFor(m Model) (*gojsonschema.Schema, error) {
	compileMu.Lock()
	defer compileMu.Unlock()

	if s, ok := compiled[m.Name]; ok {
		return s, nil
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(m.Schema))
	if err != nil {
		return nil, fmt.Errorf("compiling schema for %s: %w", m.Name, err)
	}
	if compiled == nil {
		compiled = make(map[string]*gojsonschema.Schema)
	}
	compiled[m.Name] = s
	return s, nil
}

// Validate checks params against the schema of model. It returns the list of
// violations, empty when params are valid. Models that are not in the catalog
// are not validated, since the API gains models faster than this list.
func Validate(model string, params any) ([]string, error) {
	m, ok := Lookup(model)
	if !ok {
		return nil, nil
	}

	schema, err := schemaFor(m)
	if err != nil {
		return nil, err
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return nil, fmt.Errorf("validating %s parameters: %w", model, err)
	}
	if result.Valid() {
		return nil, nil
	}

	errs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		errs = append(errs, e.String())
	}
	return errs, nil
}

// ValidationError reports parameters rejected by a model's schema.
type ValidationError struct {
	Model      string
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid parameters for %s: %v", e.Model, e.Violations)
}

// Check is Validate folded into a single error.
func Check(model string, params any) error {
	violations, err := Validate(model, params)
	if err != nil {
		return err
	}
	if len(violations) > 0 {
		return &ValidationError{Model: model, Violations: violations}
	}
	return nil
}
