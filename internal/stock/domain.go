// internal/stock/domain.go
package stock

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrBadRequest = errors.New("bad request")
)

// ItemPath prefixes the retrieval route of a single item.
const ItemPath = "/api/stock/"

// Item is a stock entry as owned by the store.
type Item struct {
	ID          int64  `json:"id" db:"id" bson:"_id"`
	Title       string `json:"title" db:"title" bson:"title"`
	Description string `json:"description" db:"description" bson:"description"`
	Price       string `json:"price" db:"price" bson:"price"`
	ImageURI    string `json:"imageUri" db:"image_uri" bson:"imageUri"`
	Done        bool   `json:"done" db:"done" bson:"done"`
}

// PublicItem is the outward-facing shape of an Item: the id is replaced by
// the absolute URI of the item.
type PublicItem struct {
	URI         string `json:"uri"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Price       string `json:"price"`
	ImageURI    string `json:"imageUri"`
	Done        bool   `json:"done"`
}

// ToPublic maps an item to its public representation rooted at baseURL.
func ToPublic(item Item, baseURL string) PublicItem {
	return PublicItem{
		URI:         strings.TrimRight(baseURL, "/") + ItemPath + strconv.FormatInt(item.ID, 10),
		Title:       item.Title,
		Description: item.Description,
		Price:       item.Price,
		ImageURI:    item.ImageURI,
		Done:        item.Done,
	}
}

// Field is a JSON member that remembers whether it was present in the body.
// An explicit null is rejected.
type Field[T any] struct {
	Value T
	Set   bool
}

func (f *Field[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return errors.New("value must not be null")
	}
	if err := json.Unmarshal(data, &f.Value); err != nil {
		return err
	}
	f.Set = true
	return nil
}

func (f Field[T]) ptr() *T {
	if !f.Set {
		return nil
	}
	v := f.Value
	return &v
}

// CreateRequest is the body accepted when creating an item.
type CreateRequest struct {
	Title       Field[string] `json:"title"`
	Description Field[string] `json:"description"`
	Price       Field[string] `json:"price"`
	ImageURI    Field[string] `json:"imageUri"`
}

// UpdateRequest is the body accepted when updating an item. Absent members
// keep their stored value.
type UpdateRequest struct {
	Title       Field[string] `json:"title"`
	Description Field[string] `json:"description"`
	Price       Field[string] `json:"price"`
	ImageURI    Field[string] `json:"imageUri"`
	Done        Field[bool]   `json:"done"`
}

// Patch is a partial update handed to a Store. Nil fields are left alone.
type Patch struct {
	Title       *string
	Description *string
	Price       *string
	ImageURI    *string
	Done        *bool
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Price == nil && p.ImageURI == nil && p.Done == nil
}

// Apply copies the non-nil fields of p onto item.
func (p Patch) Apply(item *Item) {
	if p.Title != nil {
		item.Title = *p.Title
	}
	if p.Description != nil {
		item.Description = *p.Description
	}
	if p.Price != nil {
		item.Price = *p.Price
	}
	if p.ImageURI != nil {
		item.ImageURI = *p.ImageURI
	}
	if p.Done != nil {
		item.Done = *p.Done
	}
}
