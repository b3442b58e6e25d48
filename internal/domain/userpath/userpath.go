// Package userpath builds and parses the object keys of a user's storage
// namespace. Every key has the shape {userID}/{segment}/.../{segment}, with a
// trailing "/" marking a folder.
package userpath

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Delimiter separates key segments.
const Delimiter = "/"

// Category is one of the fixed top-level directories inside a namespace.
type Category string

const (
	Inputs           Category = "inputs"
	MeasurementMasks Category = "measurementmasks"
	WidthInfoJSONs   Category = "widthinfojsons"
)

// Categories lists every category in cascade-delete order: derived artifacts
// first, source last.
var Categories = []Category{MeasurementMasks, WidthInfoJSONs, Inputs}

var (
	ErrEmptyPath       = errors.New("path is empty")
	ErrAbsolutePath    = errors.New("path must be relative")
	ErrInvalidSegment  = errors.New("path contains an invalid segment")
	ErrInvalidUserID   = errors.New("user id is not a valid namespace root")
	ErrForeignKey      = errors.New("key is outside the user's namespace")
	ErrUnknownCategory = errors.New("unknown category")
)

// ParseCategory accepts the exact category names.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}

func (c Category) Valid() bool {
	switch c {
	case Inputs, MeasurementMasks, WidthInfoJSONs:
		return true
	}
	return false
}

func (c Category) String() string { return string(c) }

// Key is a parsed storage key.
type Key struct {
	Owner    string
	Segments []string // everything after the owner
	Folder   bool
}

// String reassembles the key.
func (k Key) String() string {
	s := k.Owner + Delimiter + strings.Join(k.Segments, Delimiter)
	if k.Folder {
		s += Delimiter
	}
	return s
}

// Category returns the first segment after the owner as a category, if it is one.
func (k Key) Category() (Category, bool) {
	if len(k.Segments) == 0 {
		return "", false
	}
	c := Category(k.Segments[0])
	return c, c.Valid()
}

// Relative returns the path below the category segment.
func (k Key) Relative() string {
	if len(k.Segments) < 2 {
		return ""
	}
	return strings.Join(k.Segments[1:], Delimiter)
}

// OwnedBy compares the owner segment exactly, so "12" never owns "123/...".
func (k Key) OwnedBy(userID string) bool {
	return userID != "" && k.Owner == userID
}

// Parse splits a full key into its owner and segments. A key needs at least
// one segment below the owner.
func Parse(key string) (Key, error) {
	if key == "" {
		return Key{}, ErrEmptyPath
	}
	folder := strings.HasSuffix(key, Delimiter)
	segs, err := splitRelative(strings.TrimSuffix(key, Delimiter))
	if err != nil {
		return Key{}, err
	}
	if len(segs) < 2 {
		return Key{}, fmt.Errorf("%w: %q has no path below the owner", ErrInvalidSegment, key)
	}
	return Key{Owner: segs[0], Segments: segs[1:], Folder: folder}, nil
}

// ParseOwned parses key and checks that userID owns it.
func ParseOwned(userID, key string) (Key, error) {
	if err := ValidateUserID(userID); err != nil {
		return Key{}, err
	}
	k, err := Parse(key)
	if err != nil {
		return Key{}, err
	}
	if !k.OwnedBy(userID) {
		return Key{}, ErrForeignKey
	}
	return k, nil
}

// ValidateUserID checks that id can serve as a single key segment.
func ValidateUserID(id string) error {
	if strings.Contains(id, Delimiter) {
		return fmt.Errorf("%w: %q contains %q", ErrInvalidUserID, id, Delimiter)
	}
	if err := validateSegment(id); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidUserID, err)
	}
	return nil
}

// ValidateRelative checks a user-supplied path that will be appended below a
// namespace prefix.
func ValidateRelative(p string) error {
	_, err := splitRelative(p)
	return err
}

func splitRelative(p string) ([]string, error) {
	if p == "" {
		return nil, ErrEmptyPath
	}
	if strings.HasPrefix(p, Delimiter) {
		return nil, fmt.Errorf("%w: %q", ErrAbsolutePath, p)
	}
	segs := strings.Split(p, Delimiter)
	for _, s := range segs {
		if err := validateSegment(s); err != nil {
			return nil, fmt.Errorf("%w: %q", err, p)
		}
	}
	return segs, nil
}

func validateSegment(s string) error {
	switch {
	case s == "":
		return ErrInvalidSegment
	case s == "." || s == "..":
		return ErrInvalidSegment
	case strings.ContainsAny(s, "\\\x00"):
		return ErrInvalidSegment
	}
	return nil
}

// ObjectKey builds {userID}/{category}/{relativePath}.
func ObjectKey(userID string, category Category, relativePath string) (string, error) {
	if err := ValidateUserID(userID); err != nil {
		return "", err
	}
	if !category.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	if err := ValidateRelative(relativePath); err != nil {
		return "", err
	}
	return userID + Delimiter + string(category) + Delimiter + relativePath, nil
}

// DerivedKey returns the key of the artifact in category that belongs to the
// input at relativePath. Width-info sidecars carry a .json extension.
func DerivedKey(userID string, category Category, relativePath string) (string, error) {
	if category == WidthInfoJSONs {
		relativePath = SidecarPath(relativePath)
	}
	return ObjectKey(userID, category, relativePath)
}

// SidecarPath rewrites the extension of the last segment to .json, or appends
// it when the file has none.
func SidecarPath(relativePath string) string {
	return ChangeExtension(relativePath, ".json")
}

// ChangeExtension replaces the extension of the final segment of p with ext.
func ChangeExtension(p, ext string) string {
	dir, file := path.Split(p)
	if e := path.Ext(file); e != "" && e != file {
		file = strings.TrimSuffix(file, e)
	}
	return dir + file + ext
}

// FolderKey builds the marker key {userID}/{folderPath}/.
func FolderKey(userID, folderPath string) (string, error) {
	if err := ValidateUserID(userID); err != nil {
		return "", err
	}
	folderPath = strings.TrimSuffix(folderPath, Delimiter)
	if err := ValidateRelative(folderPath); err != nil {
		return "", err
	}
	return userID + Delimiter + folderPath + Delimiter, nil
}

// ListPrefix builds the listing prefix {userID}/[{category}/][{subpath}/].
// An empty category lists from the namespace root.
func ListPrefix(userID string, category Category, subpath string) (string, error) {
	if err := ValidateUserID(userID); err != nil {
		return "", err
	}
	prefix := userID + Delimiter
	if category != "" {
		if !category.Valid() {
			return "", fmt.Errorf("%w: %q", ErrUnknownCategory, category)
		}
		prefix += string(category) + Delimiter
	}
	subpath = strings.TrimSuffix(subpath, Delimiter)
	if subpath != "" {
		if err := ValidateRelative(subpath); err != nil {
			return "", err
		}
		prefix += subpath + Delimiter
	}
	return prefix, nil
}

// Name returns the display name of a key: its last segment, or the segment
// before the trailing delimiter for folders.
func Name(key string) string {
	key = strings.TrimSuffix(key, Delimiter)
	if i := strings.LastIndex(key, Delimiter); i >= 0 {
		return key[i+1:]
	}
	return key
}

// IsFolder reports whether key is a folder marker.
func IsFolder(key string) bool {
	return strings.HasSuffix(key, Delimiter)
}
