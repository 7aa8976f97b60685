package types

import (
	"encoding/json"
	"math"
	"sort"
	"strings"

	"github.com/ipfs/go-cid"
	"golang.org/x/xerrors"
)

// MetadataParams carries the fields of a recording's metadata before it is
// frozen into an AssetMetadata.
type MetadataParams struct {
	Title           string
	Description     string
	DurationSeconds float64
	Language        string
	CulturalTags    []string
	Characteristics map[string]string
	AudioReference  string
}

// AssetMetadata is immutable; accessors return copies.
type AssetMetadata struct {
	title           string
	description     string
	duration        float64
	language        string
	tags            []string
	characteristics map[string]string
	audio           string
}

// wire layout of the uploaded document
type metadataJSON struct {
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	Duration        float64           `json:"duration"`
	Language        string            `json:"language"`
	CulturalTags    []string          `json:"cultural_tags"`
	Characteristics map[string]string `json:"voice_characteristics"`
	AudioURL        string            `json:"audio_url"`
}

func NewAssetMetadata(p MetadataParams) (AssetMetadata, error) {
	if strings.TrimSpace(p.Title) == "" {
		return AssetMetadata{}, required("title")
	}
	if strings.TrimSpace(p.AudioReference) == "" {
		return AssetMetadata{}, required("audioReference")
	}
	if math.IsNaN(p.DurationSeconds) || math.IsInf(p.DurationSeconds, 0) || p.DurationSeconds < 0 {
		return AssetMetadata{}, outOfRange("durationSeconds", p.DurationSeconds)
	}

	m := AssetMetadata{
		title:           p.Title,
		description:     p.Description,
		duration:        p.DurationSeconds,
		language:        p.Language,
		tags:            tagSet(p.CulturalTags),
		characteristics: make(map[string]string, len(p.Characteristics)),
		audio:           p.AudioReference,
	}
	for k, v := range p.Characteristics {
		m.characteristics[k] = v
	}
	return m, nil
}

// tags are a set: trimmed, de-duplicated and sorted
func tagSet(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (m AssetMetadata) Title() string            { return m.title }
func (m AssetMetadata) Description() string      { return m.description }
func (m AssetMetadata) DurationSeconds() float64 { return m.duration }
func (m AssetMetadata) Language() string         { return m.language }
func (m AssetMetadata) AudioReference() string   { return m.audio }

func (m AssetMetadata) CulturalTags() []string {
	return append([]string(nil), m.tags...)
}

func (m AssetMetadata) Characteristics() map[string]string {
	res := make(map[string]string, len(m.characteristics))
	for k, v := range m.characteristics {
		res[k] = v
	}
	return res
}

// Serialize returns the canonical upload bytes. Struct fields keep their
// declared order and map keys are sorted, so equal metadata always
// serializes to equal bytes.
func (m AssetMetadata) Serialize() ([]byte, error) {
	return json.Marshal(metadataJSON{
		Title:           m.title,
		Description:     m.description,
		Duration:        m.duration,
		Language:        m.language,
		CulturalTags:    m.CulturalTags(),
		Characteristics: m.Characteristics(),
		AudioURL:        m.audio,
	})
}

func DecodeAssetMetadata(b []byte) (AssetMetadata, error) {
	var mj metadataJSON
	if err := json.Unmarshal(b, &mj); err != nil {
		return AssetMetadata{}, xerrors.Errorf("decode metadata: %w", err)
	}
	return NewAssetMetadata(MetadataParams{
		Title:           mj.Title,
		Description:     mj.Description,
		DurationSeconds: mj.Duration,
		Language:        mj.Language,
		CulturalTags:    mj.CulturalTags,
		Characteristics: mj.Characteristics,
		AudioReference:  mj.AudioURL,
	})
}

// ReferenceScheme prefixes every MetadataReference.
const ReferenceScheme = "ipfs://"

// MetadataReference is the content address of uploaded metadata, e.g.
// ipfs://bafkrei...
type MetadataReference string

func NewMetadataReference(c cid.Cid) MetadataReference {
	return MetadataReference(ReferenceScheme + c.String())
}

func ParseMetadataReference(s string) (MetadataReference, error) {
	if _, err := MetadataReference(s).CID(); err != nil {
		return "", err
	}
	return MetadataReference(s), nil
}

func (r MetadataReference) CID() (cid.Cid, error) {
	s := string(r)
	if !strings.HasPrefix(s, ReferenceScheme) {
		return cid.Undef, malformed("metadataReference", s)
	}
	c, err := cid.Decode(s[len(ReferenceScheme):])
	if err != nil {
		return cid.Undef, malformed("metadataReference", s)
	}
	return c, nil
}

func (r MetadataReference) String() string {
	return string(r)
}

func (r MetadataReference) Empty() bool {
	return r == ""
}
