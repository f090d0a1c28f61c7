package model

import "turtlcore/internal/keychain"

// FileDescriptor lives inside a Note as a submodel: its own serialization
// happens before the parent Note's and it inherits the Note's key rather
// than keeping one of its own (spec.md §4.3's submodel field kind).
type FileDescriptor struct {
	Base

	Size    uint64 `json:"size"`
	HasData bool   `json:"has_data"`

	private filePrivate
}

type filePrivate struct {
	Name string            `json:"name"`
	Type string            `json:"type,omitempty"`
	Meta map[string]string `json:"meta,omitempty"`
}

func NewFileDescriptor() *FileDescriptor { return &FileDescriptor{} }

func (f *FileDescriptor) ModelBase() *Base         { return &f.Base }
func (f *FileDescriptor) PrivateData() interface{} { return &f.private }
func (f *FileDescriptor) Name() string             { return f.private.Name }
func (f *FileDescriptor) SetName(name string)       { f.private.Name = name }
func (f *FileDescriptor) Type() string              { return f.private.Type }
func (f *FileDescriptor) SetType(t string)          { f.private.Type = t }

// KeyRefs is empty: a submodel has no sharing targets of its own, it rides
// on whatever key its parent assigned it.
func (f *FileDescriptor) KeyRefs(keychain.CandidateSource) ([]keychain.KeyRef, error) {
	return nil, nil
}

// FileData is the separate entity holding the file's actual encrypted bytes
// on disk, addressed by the owning note's id (spec.md §3's "File body").
type FileData struct {
	Base

	NoteID  string `json:"note_id"`
	HasData bool   `json:"has_data"`

	private fileDataPrivate
}

type fileDataPrivate struct {
	Data []byte `json:"data,omitempty"`
}

func NewFileData() *FileData { return &FileData{} }

func (f *FileData) ModelBase() *Base         { return &f.Base }
func (f *FileData) PrivateData() interface{} { return &f.private }
func (f *FileData) SetData(data []byte)      { f.private.Data = data }
func (f *FileData) Data() []byte             { return f.private.Data }

// KeyRefs is empty: FileData inherits its owning Note's key directly (the
// caller copies it via Base.SetKey when constructing a FileData for a given
// note) rather than through a keys[] entry, since the wire key-type enum
// (s/b/u) has no "note" tag to address it by.
func (f *FileData) KeyRefs(keychain.CandidateSource) ([]keychain.KeyRef, error) {
	return nil, nil
}
