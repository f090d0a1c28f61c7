package model

import "turtlcore/internal/keychain"

// Note is the leaf content object: text, link, image, password entry, etc.,
// optionally carrying a file attachment described by an embedded
// FileDescriptor submodel (spec.md §3).
type Note struct {
	Base

	SpaceID string          `json:"space_id"`
	BoardID *string         `json:"board_id,omitempty"`
	UserID  string          `json:"user_id"`
	HasFile bool            `json:"has_file"`
	File    *FileDescriptor `json:"file,omitempty"`

	private notePrivate
}

type notePrivate struct {
	Type     string   `json:"type,omitempty"`
	Title    string   `json:"title,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	URL      string   `json:"url,omitempty"`
	Username string   `json:"username,omitempty"`
	Password string   `json:"password,omitempty"`
	Text     string   `json:"text,omitempty"`
	Embed    string   `json:"embed,omitempty"`
	Color    int64    `json:"color,omitempty"`
}

func NewNote() *Note { return &Note{} }

func (n *Note) ModelBase() *Base         { return &n.Base }
func (n *Note) PrivateData() interface{} { return &n.private }
func (n *Note) Title() string            { return n.private.Title }
func (n *Note) SetTitle(title string)    { n.private.Title = title }
func (n *Note) Tags() []string           { return n.private.Tags }
func (n *Note) SetTags(tags []string)    { n.private.Tags = tags }
func (n *Note) Text() string             { return n.private.Text }
func (n *Note) SetText(text string)      { n.private.Text = text }
func (n *Note) Type() string             { return n.private.Type }
func (n *Note) SetType(t string)         { n.private.Type = t }
func (n *Note) Color() int64             { return n.private.Color }
func (n *Note) SetColor(c int64)         { n.private.Color = c }

// KeyRefs shares the Note's key with both its Space and (if set) its Board,
// matching spec.md §4.2: "a Note yields the space and any board ids
// referenced by its body".
func (n *Note) KeyRefs(candidates keychain.CandidateSource) ([]keychain.KeyRef, error) {
	var refs []keychain.KeyRef
	if spaceKey, ok := candidates.CandidateKey(n.SpaceID); ok {
		ref, err := sealKeyRef(keychain.KeyRef{ItemID: n.SpaceID, Type: keychain.TypeSpace}, n.Base.key, spaceKey)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	if n.BoardID != nil {
		if boardKey, ok := candidates.CandidateKey(*n.BoardID); ok {
			ref, err := sealKeyRef(keychain.KeyRef{ItemID: *n.BoardID, Type: keychain.TypeBoard}, n.Base.key, boardKey)
			if err != nil {
				return nil, err
			}
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

// SerializeWithFile serializes the embedded FileDescriptor submodel first
// (inheriting the Note's key), then the Note itself, per spec.md §4.3's
// submodel ordering rule ("recursively serialize submodels; their body
// replaces their inline form").
func (n *Note) SerializeWithFile(candidates keychain.CandidateSource) error {
	if n.File != nil {
		n.File.Base.SetKey(n.Base.key)
		if err := Serialize(n.File, candidates); err != nil {
			return err
		}
	}
	return Serialize(n, candidates)
}

// DeserializeWithFile is SerializeWithFile's counterpart (spec.md §4.3
// deserialize step 3: "recursively deserialize any submodels, propagating
// the key"): decrypts the Note first, then — if it carries a File
// submodel — decrypts that under the now-resolved Note key rather than a
// keychain entry of its own, since a submodel rides on its parent's key.
func (n *Note) DeserializeWithFile(kc *keychain.Keychain, candidates keychain.CandidateSource) error {
	if err := Deserialize(n, kc, candidates); err != nil {
		return err
	}
	if n.HasFile && n.File != nil {
		n.File.Base.SetKey(n.Base.key)
		if err := Deserialize(n.File, kc, candidates); err != nil {
			return err
		}
	}
	return nil
}
